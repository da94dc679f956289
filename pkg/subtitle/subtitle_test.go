package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const sampleVTT = "WEBVTT\n\nNOTE This is a note\n\nSTYLE\n::cue { color: #fff }\n\n1\n00:00:00.000 --> 00:00:02.000\nHello world\nThis is line two\n\n2\n00:00:02.500 --> 00:00:04.000\nAnother cue\n\n"

const sampleSRT = "1\n00:00:00,000 --> 00:00:02,000\nHello world\nThis is line two\n\n2\n00:00:02,500 --> 00:00:04,000\nAnother cue\n\n"

func TestParseSRTToText(t *testing.T) {
	in := "1\n00:00:00,000 --> 00:00:02,000\nHello world\n\n2\n00:00:02,500 --> 00:00:04,000\nAnother cue\n"
	assert.Equal(t, "Hello world Another cue", ParseSRTToText(in))
	assert.Equal(t, "Hello world This is line two Another cue", ParseSRTToText(sampleSRT))
}

func TestParseVTTToText(t *testing.T) {
	assert.Equal(t, "Hello world This is line two Another cue", ParseVTTToText(sampleVTT))
}

func TestParseVTTYouTubeHeaderAndTags(t *testing.T) {
	doc := "WEBVTT\nKind: captions\nLanguage: en\n\n" +
		"00:00:01.000 --> 00:00:03.000 align:start position:0%\n" +
		"so<00:00:01.500><c> today</c><00:00:02.000><c> we</c>\n\n" +
		"00:03.000 --> 00:05.000\n<v Speaker>look at Go</v>\n"
	assert.Equal(t, "so today we look at Go", ParseVTTToText(doc))
}

func TestParseVTTHeaderWithoutBlankLine(t *testing.T) {
	doc := "WEBVTT\n00:00:00.000 --> 00:00:02.000\nHello world\n\n00:00:02.500 --> 00:00:04.000\nAnother cue\n"
	assert.Equal(t, "Hello world Another cue", ParseVTTToText(doc))

	doc = "WEBVTT - exported\nKind: captions\n00:00:00.000 --> 00:00:02.000\nKind: of a cue\n"
	assert.Equal(t, "Kind: of a cue", ParseVTTToText(doc))
}

func TestNoteIsSpokenTextOutsideWebVTT(t *testing.T) {
	doc := "1\n00:00:00,000 --> 00:00:02,000\nNOTE the time\n\n2\n00:00:02,500 --> 00:00:04,000\nAnother cue\n"
	once := ParseSRTToText(doc)
	assert.Equal(t, "NOTE the time Another cue", once)
	assert.Equal(t, once, ParseSRTToText(once))
	assert.Equal(t, once, ParseVTTToText(once))

	vtt := "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nfirst\n\nNOTE between cues\n\n00:00:01.000 --> 00:00:02.000\nsecond\n"
	assert.Equal(t, "first second", ParseVTTToText(vtt))
}

func TestParseHandlesCRLF(t *testing.T) {
	doc := "1\r\n00:00:00,000 --> 00:00:01,000\r\nfirst\r\n\r\n2\r\n00:00:01,000 --> 00:00:02,000\r\nsecond\r\n"
	assert.Equal(t, "first second", ParseSRTToText(doc))
}

func TestParseEmptyAndIdempotent(t *testing.T) {
	assert.Equal(t, "", ParseVTTToText(""))
	assert.Equal(t, "", ParseSRTToText(""))
	assert.Equal(t, "", ParseSRTToText("1\n00:00:00,000 --> 00:00:01,000\n\n"))

	for _, doc := range []string{sampleVTT, sampleSRT, "  plain   text\n\nwith gaps "} {
		once := ParseVTTToText(doc)
		assert.Equal(t, once, ParseVTTToText(once))
		assert.Equal(t, once, ParseSRTToText(once))
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Hello world This is line two Another cue", NormalizeText(sampleSRT))
	assert.Equal(t, "just some words", NormalizeText("  just\n some\twords "))
	// a bare number is valid transcript text when the payload is not a subtitle file
	assert.Equal(t, "42", NormalizeText("42"))
}

func TestLooksLikeSubtitle(t *testing.T) {
	assert.True(t, LooksLikeSubtitle(sampleVTT))
	assert.True(t, LooksLikeSubtitle(sampleSRT))
	assert.False(t, LooksLikeSubtitle("hello there"))
}

func TestRenderRoundTrip(t *testing.T) {
	segs := []models.Segment{
		{Text: "Hello world", Start: 0, Duration: 2},
		{Text: "   ", Start: 2, Duration: 0.5},
		{Text: "Another cue", Start: 2.5, Duration: 1.5},
	}

	srt := RenderSRT(segs)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,000\nHello world\n\n2\n00:00:02,500 --> 00:00:04,000\nAnother cue\n\n", srt)
	assert.Equal(t, "Hello world Another cue", ParseSRTToText(srt))

	vtt := RenderVTT(segs)
	assert.Contains(t, vtt, "00:00:02.500 --> 00:00:04.000")
	assert.Equal(t, "Hello world Another cue", ParseVTTToText(vtt))
}

func TestFormatTimes(t *testing.T) {
	assert.Equal(t, "00:01:05,500", formatSRTTime(65.5))
	assert.Equal(t, "01:00:00.000", formatVTTTime(3600))
	assert.Equal(t, "00:00:00,000", formatSRTTime(-1))
}
