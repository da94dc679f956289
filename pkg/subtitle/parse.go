// Package subtitle converts between timed caption documents (SRT, WebVTT)
// and flat transcript text.
package subtitle

import (
	"regexp"
	"strings"
)

var (
	timestampLineRE = regexp.MustCompile(`^(?:\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}\s*-->`)
	cueNumberRE     = regexp.MustCompile(`^\d+$`)
	headerFieldRE   = regexp.MustCompile(`^[A-Za-z][\w-]*:\s`)
	// voice/class spans and karaoke timestamps as emitted by YouTube auto captions
	inlineTagRE  = regexp.MustCompile(`</?(?:c|i|b|u|v|lang|ruby|rt)(?:[.\s][^>]*)?>|<(?:\d{1,2}:)?\d{2}:\d{2}\.\d{3}>`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// ParseVTTToText flattens a WebVTT document into a single line of text.
// The WEBVTT line and its metadata fields are dropped, as are NOTE, STYLE
// and ::cue blocks, cue numbers and timing lines.
func ParseVTTToText(doc string) string {
	return flatten(doc)
}

// ParseSRTToText flattens an SRT document into a single line of text.
func ParseSRTToText(doc string) string {
	return flatten(doc)
}

// LooksLikeSubtitle reports whether s appears to be an SRT or WebVTT
// document rather than plain text.
func LooksLikeSubtitle(s string) bool {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "WEBVTT") {
		return true
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if timestampLineRE.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// NormalizeText returns s as flat text, parsing it first when it is a
// subtitle document.
func NormalizeText(s string) string {
	if LooksLikeSubtitle(s) {
		return flatten(s)
	}
	return collapse(s)
}

func flatten(doc string) string {
	if doc == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))

	// NOTE, STYLE and REGION blocks only exist in WebVTT; in SRT or flat
	// text those words are spoken content.
	vtt := strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(doc, "\ufeff")), "WEBVTT")
	header := vtt
	skipping := false
	blockStart := true
	for _, raw := range lines {
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

		if line == "" {
			header = false
			skipping = false
			blockStart = true
			continue
		}
		if skipping {
			continue
		}
		if header {
			// the WEBVTT line plus any "Key: value" metadata directly below it
			if strings.HasPrefix(line, "WEBVTT") || headerFieldRE.MatchString(line) {
				continue
			}
			header = false
		}
		if vtt && blockStart && isMetaBlock(line) {
			skipping = true
			blockStart = false
			continue
		}
		blockStart = false

		if cueNumberRE.MatchString(line) || timestampLineRE.MatchString(line) {
			continue
		}
		kept = append(kept, inlineTagRE.ReplaceAllString(line, ""))
	}

	return collapse(strings.Join(kept, " "))
}

func isMetaBlock(line string) bool {
	switch {
	case line == "NOTE" || strings.HasPrefix(line, "NOTE ") || strings.HasPrefix(line, "NOTE\t"):
		return true
	case line == "STYLE" || line == "REGION":
		return true
	case strings.HasPrefix(line, "::cue"):
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
