package apify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/subtitle"
)

// Kind says which shape the scraper returned the transcript in.
type Kind string

const (
	KindNone     Kind = ""
	KindSegments Kind = "segments"
	KindText     Kind = "text"
)

// Transcript is the dataset's transcript field. The scraper emits either a
// list of cues or one string; both are decoded here and nowhere else.
type Transcript struct {
	Kind     Kind
	Segments []models.Segment
	Text     string
}

// UnmarshalJSON accepts an array of cue objects (or bare strings), a
// string, or null.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Transcript{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Transcript{Kind: KindText, Text: s}
		return nil

	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		segs := make([]models.Segment, 0, len(raw))
		for i, r := range raw {
			seg, err := decodeCue(r)
			if err != nil {
				return fmt.Errorf("transcript cue %d: %w", i, err)
			}
			segs = append(segs, seg)
		}
		*t = Transcript{Kind: KindSegments, Segments: segs}
		return nil
	}

	return fmt.Errorf("unsupported transcript payload starting with %q", data[0])
}

// MarshalJSON writes the transcript back in the shape it arrived in.
func (t Transcript) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case KindText:
		return json.Marshal(t.Text)
	case KindSegments:
		return json.Marshal(t.Segments)
	}
	return []byte("null"), nil
}

type cue struct {
	Text     string    `json:"text"`
	Start    flexFloat `json:"start"`
	Duration flexFloat `json:"duration"`
	Dur      flexFloat `json:"dur"`
}

func decodeCue(r json.RawMessage) (models.Segment, error) {
	r = bytes.TrimSpace(r)
	if len(r) > 0 && r[0] == '"' {
		var s string
		err := json.Unmarshal(r, &s)
		return models.Segment{Text: s}, err
	}

	var c cue
	if err := json.Unmarshal(r, &c); err != nil {
		return models.Segment{}, err
	}
	dur := c.Duration
	if dur == 0 {
		dur = c.Dur
	}
	return models.Segment{Text: c.Text, Start: float64(c.Start), Duration: float64(dur)}, nil
}

// flexFloat takes numbers as either JSON numbers or numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// Normalize returns the transcript as segments. Text payloads that are
// really SRT or WebVTT documents are flattened first.
func (t Transcript) Normalize() []models.Segment {
	switch t.Kind {
	case KindSegments:
		return t.Segments
	case KindText:
		text := subtitle.NormalizeText(t.Text)
		if text == "" {
			return nil
		}
		return []models.Segment{{Text: text}}
	}
	return nil
}
