package subtitle

import (
	"fmt"
	"strings"

	"github.com/z-wentao/tubenotes/pkg/models"
)

// RenderSRT writes segments as an SRT document. Segments with blank text
// are skipped and do not consume a cue number.
func RenderSRT(segments []models.Segment) string {
	return render(segments, "", formatSRTTime)
}

// RenderVTT writes segments as a WebVTT document.
func RenderVTT(segments []models.Segment) string {
	return render(segments, "WEBVTT\n\n", formatVTTTime)
}

func render(segments []models.Segment, header string, format func(float64) string) string {
	var b strings.Builder
	b.WriteString(header)

	index := 1
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d\n", index)
		fmt.Fprintf(&b, "%s --> %s\n", format(seg.Start), format(seg.Start+seg.Duration))
		fmt.Fprintf(&b, "%s\n\n", text)
		index++
	}
	return b.String()
}

// 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	h, m, s, ms := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// 65.5 -> 00:01:05.500
func formatVTTTime(seconds float64) string {
	h, m, s, ms := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitSeconds(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds*1000 + 0.5)
	ms = total % 1000
	total /= 1000
	return total / 3600, (total % 3600) / 60, total % 60, ms
}
