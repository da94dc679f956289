package templates

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

const descriptionExcerpt = 500

// Document is everything that goes into one markdown file.
type Document struct {
	Title            string
	Video            *models.VideoMetadata
	Analysis         string
	TranscriptStatus models.TranscriptStatus
	TranscriptSource string
	Model            string
	GeneratedAt      time.Time
}

type frontMatter struct {
	Title            string   `yaml:"title"`
	URL              string   `yaml:"url"`
	Channel          string   `yaml:"channel"`
	Published        string   `yaml:"published"`
	Views            uint64   `yaml:"views"`
	Likes            uint64   `yaml:"likes"`
	Duration         string   `yaml:"duration,omitempty"`
	Tags             []string `yaml:"tags,omitempty"`
	TranscriptStatus string   `yaml:"transcript_status"`
	TranscriptSource string   `yaml:"transcript_source,omitempty"`
	Model            string   `yaml:"model,omitempty"`
	Generated        string   `yaml:"generated"`
}

var body = template.Must(template.New("body").Funcs(template.FuncMap{
	"number": FormatNumber,
}).Parse(`# {{.Title}} (YouTube Summary)

**Channel:** {{.Video.ChannelTitle}}  
**Published:** {{.Published}}  
**Views:** {{number .Video.ViewCount}}  
**Likes:** {{number .Video.LikeCount}}  
**URL:** [{{.URL}}]({{.URL}})
{{- if .Note}}

> {{.Note}}
{{- end}}

## Video Description
{{.Description}}

---

{{.Analysis}}

---

*This summary was generated using AI analysis of the video transcript.*
`))

// RenderMarkdown builds the markdown document: YAML front matter, a
// header block with video facts, the description excerpt and the analysis.
func RenderMarkdown(doc Document) (string, error) {
	if doc.Video == nil {
		return "", fmt.Errorf("render markdown: missing video metadata")
	}
	if doc.Title == "" {
		doc.Title = doc.Video.Title
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now()
	}

	url := youtube.ShortURL(doc.Video.VideoID)
	published := FormatDate(doc.Video.PublishedAt)

	fm, err := yaml.Marshal(frontMatter{
		Title:            doc.Title,
		URL:              url,
		Channel:          doc.Video.ChannelTitle,
		Published:        published,
		Views:            doc.Video.ViewCount,
		Likes:            doc.Video.LikeCount,
		Duration:         doc.Video.Duration,
		Tags:             doc.Video.Tags,
		TranscriptStatus: string(doc.TranscriptStatus),
		TranscriptSource: doc.TranscriptSource,
		Model:            doc.Model,
		Generated:        doc.GeneratedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("render front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")

	err = body.Execute(&buf, map[string]any{
		"Title":       doc.Title,
		"Video":       doc.Video,
		"Published":   published,
		"URL":         url,
		"Description": excerpt(doc.Video.Description, descriptionExcerpt),
		"Analysis":    strings.TrimSpace(doc.Analysis),
		"Note":        statusNote(doc.TranscriptStatus),
	})
	if err != nil {
		return "", fmt.Errorf("render markdown body: %w", err)
	}
	return buf.String(), nil
}

func statusNote(s models.TranscriptStatus) string {
	switch s {
	case models.TranscriptFailed, models.TranscriptNotAvailable:
		return "No transcript could be retrieved; this summary is based on the video description."
	case models.TranscriptAPIAvailableButNoExtract:
		return "Captions exist for this video but could not be extracted; this summary is based on the video description."
	}
	return ""
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// FormatDate renders an RFC 3339 timestamp as "January 2, 2006". Values
// that do not parse are returned unchanged.
func FormatDate(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("January 2, 2006")
}

// FormatNumber adds thousands separators: 1234567 -> 1,234,567.
func FormatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]`)

// SanitizeFilename lowercases s and replaces every character outside
// [a-z0-9] with an underscore.
func SanitizeFilename(s string) string {
	return unsafeFilenameChars.ReplaceAllString(strings.ToLower(s), "_")
}

// Filename is the output name for a document: sanitized title plus a
// millisecond timestamp.
func Filename(title string, now time.Time) string {
	base := SanitizeFilename(title)
	if len(base) > 100 {
		base = base[:100]
	}
	if strings.Trim(base, "_") == "" {
		base = "youtube_summary"
	}
	return fmt.Sprintf("%s_%d.md", base, now.UnixMilli())
}
