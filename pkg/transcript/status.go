package transcript

import "github.com/z-wentao/tubenotes/pkg/models"

// Probe is the outcome of listing caption tracks through the Data API.
// It never contributes text.
type Probe struct {
	Tracks int
	Err    error
}

// Confirmed reports whether the probe positively saw caption tracks.
func (p Probe) Confirmed() bool {
	return p.Err == nil && p.Tracks > 0
}

// Classify folds an acquisition result and a probe into the status shown
// to users. A failed probe counts as "no evidence", so it can never turn a
// failure into anything better.
func Classify(res Result, probe Probe) models.TranscriptStatus {
	switch {
	case res.Found():
		return models.TranscriptAvailable
	case probe.Confirmed():
		return models.TranscriptAPIAvailableButNoExtract
	default:
		return models.TranscriptFailed
	}
}
