// Package transcript obtains a flat transcript for a video by walking an
// ordered list of acquisition strategies until one yields text.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/z-wentao/tubenotes/pkg/models"
)

// Source tags which family of strategy produced a transcript.
type Source string

const (
	SourceCaptionsPrimary Source = "captions-primary"
	SourceCaptionsEnglish Source = "captions-english"
	SourceLanguageVariant Source = "captions-language-variant"
	SourceScraperFallback Source = "scraper-fallback"
	SourcePaidScraper     Source = "paid-scraper-fallback"
	SourceNone            Source = "none"
)

// Outcome of a single strategy attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// ErrSkipped is recorded for strategies whose capability gate is closed.
var ErrSkipped = errors.New("strategy not configured")

// Strategy is one step of the chain. Enabled may be nil, meaning always on.
type Strategy struct {
	Name    string
	Source  Source
	Enabled func() bool
	Fetch   func(ctx context.Context, videoID string) ([]models.Segment, error)
}

// Attempt records what one strategy did.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Source   Source        `json:"source"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Result of an acquisition. Text is empty exactly when Source is none.
type Result struct {
	Text     string    `json:"text"`
	Source   Source    `json:"source"`
	Strategy string    `json:"strategy,omitempty"`
	Segments int       `json:"segments"`
	Attempts []Attempt `json:"attempts"`
	// LastErr is the most recent strategy failure, for logging only.
	LastErr error `json:"-"`
}

// Found reports whether some strategy produced text.
func (r Result) Found() bool {
	return r.Source != SourceNone && r.Text != ""
}

// Observer is told about every attempt as soon as it finishes.
type Observer func(videoID string, a Attempt)

type Option func(*Acquirer)

// WithObserver registers a callback invoked after each attempt.
func WithObserver(o Observer) Option {
	return func(a *Acquirer) { a.observers = append(a.observers, o) }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) { a.logger = l }
}

// Acquirer runs the strategy chain. It holds no per-request state and is
// safe for concurrent use.
type Acquirer struct {
	strategies []Strategy
	observers  []Observer
	logger     *slog.Logger
}

func NewAcquirer(strategies []Strategy, opts ...Option) *Acquirer {
	a := &Acquirer{
		strategies: strategies,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "transcript"))
	return a
}

// Strategies returns the chain in execution order.
func (a *Acquirer) Strategies() []Strategy {
	return append([]Strategy(nil), a.strategies...)
}

// Acquire walks the chain strictly in order and stops at the first
// strategy that yields non-blank text. It never fails: when every
// strategy comes up empty the result has empty text and source none.
func (a *Acquirer) Acquire(ctx context.Context, videoID string) Result {
	res := Result{
		Source:   SourceNone,
		Attempts: make([]Attempt, 0, len(a.strategies)),
	}

	for _, s := range a.strategies {
		att := Attempt{Strategy: s.Name, Source: s.Source}

		if s.Enabled != nil && !s.Enabled() {
			att.Outcome = OutcomeSkipped
			att.Error = ErrSkipped.Error()
			a.record(videoID, &res, att)
			continue
		}

		start := time.Now()
		segments, err := a.run(ctx, s, videoID)
		att.Elapsed = time.Since(start)

		if err != nil {
			att.Outcome = OutcomeError
			att.Error = err.Error()
			res.LastErr = fmt.Errorf("%s: %w", s.Name, err)
			a.record(videoID, &res, att)
			continue
		}

		text := Join(segments)
		if text == "" {
			att.Outcome = OutcomeEmpty
			a.record(videoID, &res, att)
			continue
		}

		att.Outcome = OutcomeSuccess
		a.record(videoID, &res, att)
		res.Text = text
		res.Source = s.Source
		res.Strategy = s.Name
		res.Segments = len(segments)
		return res
	}

	a.logger.Warn("no transcript from any strategy",
		slog.String("video_id", videoID),
		slog.Int("attempts", len(res.Attempts)),
		slog.Any("last_error", res.LastErr))
	return res
}

// run calls one strategy, turning a panic into an error so one broken
// fetcher cannot take down the chain.
func (a *Acquirer) run(ctx context.Context, s Strategy, videoID string) (segments []models.Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Fetch == nil {
		return nil, errors.New("strategy has no fetch function")
	}
	return s.Fetch(ctx, videoID)
}

func (a *Acquirer) record(videoID string, res *Result, att Attempt) {
	res.Attempts = append(res.Attempts, att)

	attrs := []any{
		slog.String("video_id", videoID),
		slog.String("strategy", att.Strategy),
		slog.String("outcome", string(att.Outcome)),
		slog.Duration("elapsed", att.Elapsed),
	}
	switch att.Outcome {
	case OutcomeError:
		a.logger.Info("transcript strategy failed", append(attrs, slog.String("error", att.Error))...)
	case OutcomeSuccess:
		a.logger.Info("transcript acquired", attrs...)
	default:
		a.logger.Debug("transcript strategy produced nothing", attrs...)
	}

	for _, o := range a.observers {
		o(videoID, att)
	}
}

// Join flattens segments into one line: texts joined by a single space and
// trimmed. Whitespace-only output is returned as "".
func Join(segments []models.Segment) string {
	if len(segments) == 0 {
		return ""
	}
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
