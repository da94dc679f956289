package templates

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-wentao/tubenotes/pkg/models"
)

func testVideo() *models.VideoMetadata {
	return &models.VideoMetadata{
		VideoID:      "dQw4w9WgXcQ",
		Title:        "Go Concurrency Patterns",
		ChannelTitle: "Gopher TV",
		Description:  strings.Repeat("x", 700),
		PublishedAt:  "2012-07-02T18:00:00Z",
		ViewCount:    1234567,
		LikeCount:    999,
		Duration:     "PT51M",
		Tags:         []string{"go", "concurrency"},
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown(Document{
		Title:            "Channels in Practice",
		Video:            testVideo(),
		Analysis:         "\n## Topics Covered\n- channels\n",
		TranscriptStatus: models.TranscriptAvailable,
		TranscriptSource: "captions-primary",
		Model:            "openai/gpt-3.5-turbo",
		GeneratedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "---\n"))
	for _, want := range []string{
		"title: Channels in Practice",
		"https://youtu.be/dQw4w9WgXcQ",
		"transcript_status: available",
		"transcript_source: captions-primary",
		"2024-01-02T03:04:05Z",
		"# Channels in Practice (YouTube Summary)",
		"**Channel:** Gopher TV",
		"**Published:** July 2, 2012",
		"**Views:** 1,234,567",
		"**Likes:** 999",
		"**URL:** [https://youtu.be/dQw4w9WgXcQ](https://youtu.be/dQw4w9WgXcQ)",
		"## Video Description\n" + strings.Repeat("x", 500) + "...\n",
		"---\n\n## Topics Covered\n- channels\n\n---",
		"*This summary was generated using AI analysis of the video transcript.*",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, strings.Repeat("x", 501))
	assert.NotContains(t, out, "> ")
}

func TestRenderMarkdownStatusNote(t *testing.T) {
	v := testVideo()
	v.Description = "short"

	out, err := RenderMarkdown(Document{Video: v, Analysis: "a", TranscriptStatus: models.TranscriptAPIAvailableButNoExtract})
	require.NoError(t, err)
	assert.Contains(t, out, "# Go Concurrency Patterns (YouTube Summary)")
	assert.Contains(t, out, "> Captions exist for this video but could not be extracted")
	assert.Contains(t, out, "## Video Description\nshort\n")

	out, err = RenderMarkdown(Document{Video: v, Analysis: "a", TranscriptStatus: models.TranscriptFailed})
	require.NoError(t, err)
	assert.Contains(t, out, "> No transcript could be retrieved")
}

func TestRenderMarkdownNeedsVideo(t *testing.T) {
	_, err := RenderMarkdown(Document{Title: "x"})
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	tests := map[uint64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		12345:      "12,345",
		123456:     "123,456",
		1234567890: "1,234,567,890",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in))
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "March 15, 2023", FormatDate("2023-03-15T10:00:00Z"))
	assert.Equal(t, "yesterday", FormatDate("yesterday"))
	assert.Equal(t, "", FormatDate(""))
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "go__channels_1700000000123.md", Filename("Go: Channels", now))
	assert.Equal(t, "youtube_summary_1700000000123.md", Filename("???", now))
	assert.Equal(t, "youtube_summary_1700000000123.md", Filename("", now))

	long := Filename(strings.Repeat("a", 150), now)
	assert.Equal(t, strings.Repeat("a", 100)+"_1700000000123.md", long)

	assert.Equal(t, "hello_world_", SanitizeFilename("Hello World!"))
}
