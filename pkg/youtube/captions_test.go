package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-wentao/tubenotes/pkg/retry"
)

const timedTextXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.5" dur="2.1">Hello &amp;amp; welcome</text>` +
	`<text start="2.6" dur="1">   </text>` +
	`<text start="3.6" dur="1.4">it&amp;#39;s
a test</text></transcript>`

// captionServer serves a player endpoint, a watch page and timedtext
// bodies keyed by the lang query parameter.
func captionServer(t *testing.T, tracksJSON func(base string) string) *CaptionClient {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/player":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "3", r.Header.Get("X-Youtube-Client-Name"))
			fmt.Fprintf(w, `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s}}}`, tracksJSON(srv.URL))
		case "/watch":
			fmt.Fprintf(w, `<html><script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s}}};var meta = {};</script></html>`, tracksJSON(srv.URL))
		case "/timedtext":
			if r.URL.Query().Get("lang") == "broken" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(timedTextXML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewCaptionClient(srv.Client())
	c.retry = retry.None
	c.playerURL = srv.URL + "/player"
	c.watchURL = srv.URL + "/watch"
	return c
}

func tracks(specs ...string) func(string) string {
	return func(base string) string {
		out := "["
		for i := 0; i+1 < len(specs); i += 2 {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf(`{"baseUrl":"%s/timedtext?lang=%s","languageCode":"%s","kind":"%s"}`, base, specs[i], specs[i], specs[i+1])
		}
		return out + "]"
	}
}

func TestFetchCaptionsDefaultTrack(t *testing.T) {
	c := captionServer(t, tracks("de", "", "en", "asr"))

	segs, err := c.FetchCaptions(context.Background(), "abcdefghijk", "")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "Hello & welcome", segs[0].Text)
	assert.Equal(t, 0.5, segs[0].Start)
	assert.Equal(t, 2.1, segs[0].Duration)
	assert.Equal(t, "it's a test", segs[1].Text)
}

func TestFetchCaptionsExactLanguage(t *testing.T) {
	c := captionServer(t, tracks("en-GB", "asr", "de", ""))

	_, err := c.FetchCaptions(context.Background(), "abcdefghijk", "en")
	assert.ErrorIs(t, err, ErrLanguageUnavailable)

	segs, err := c.FetchCaptions(context.Background(), "abcdefghijk", "en-GB")
	require.NoError(t, err)
	assert.NotEmpty(t, segs)
}

func TestFetchCaptionsNoTracks(t *testing.T) {
	c := captionServer(t, func(string) string { return "[]" })

	_, err := c.FetchCaptions(context.Background(), "abcdefghijk", "")
	assert.ErrorIs(t, err, ErrNoCaptions)
}

func TestFetchCaptionsTimedTextFailure(t *testing.T) {
	c := captionServer(t, tracks("broken", ""))

	_, err := c.FetchCaptions(context.Background(), "abcdefghijk", "")
	assert.ErrorContains(t, err, "http 404")
}

func TestScrapeCaptionsUsesHint(t *testing.T) {
	c := captionServer(t, tracks("fr", "", "en-US", "asr"))

	segs, err := c.ScrapeCaptions(context.Background(), "abcdefghijk", "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome", segs[0].Text)
}

func TestTrackSelection(t *testing.T) {
	all := []captionTrack{
		{BaseURL: "u1&exp=xpe", LanguageCode: "en"},
		{BaseURL: "u2", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "u3", LanguageCode: "es"},
	}

	got, err := defaultTrack(all)
	require.NoError(t, err)
	assert.Equal(t, "u3", got.BaseURL)

	got, err = exactTrack(all, "EN")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.BaseURL)

	got, err = preferredTrack(all, "en-AU")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.BaseURL)

	_, err = defaultTrack(all[:1])
	assert.ErrorIs(t, err, ErrPoTokenRequired)
}

func TestParseTimedText(t *testing.T) {
	_, err := parseTimedText([]byte("  "))
	assert.Error(t, err)

	_, err = parseTimedText([]byte("<transcript><text"))
	assert.Error(t, err)

	segs, err := parseTimedText([]byte(`<transcript></transcript>`))
	require.NoError(t, err)
	assert.Empty(t, segs)
}
