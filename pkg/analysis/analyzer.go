// Package analysis runs one video through the whole pipeline: metadata,
// transcript, summary, markdown and file output.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/summarizer"
	"github.com/z-wentao/tubenotes/pkg/templates"
	"github.com/z-wentao/tubenotes/pkg/transcript"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

var ErrInvalidURL = errors.New("invalid youtube url")

// VideoSource is the Data API: metadata plus the caption probe.
type VideoSource interface {
	Configured() bool
	Metadata(ctx context.Context, videoID string) (*models.VideoMetadata, error)
	CaptionTracks(ctx context.Context, videoID string) ([]youtube.CaptionTrack, error)
}

type TranscriptAcquirer interface {
	Acquire(ctx context.Context, videoID string) transcript.Result
}

type Summarizer interface {
	Configured() bool
	Analyze(ctx context.Context, req summarizer.Request) (string, error)
	GenerateTitle(ctx context.Context, transcript string, meta *models.VideoMetadata, model string) string
}

type DocumentWriter interface {
	Save(filename, content string) (string, error)
}

// Request is one analysis. Empty Model, PromptID and MaxTokens use the
// summarizer defaults.
type Request struct {
	URL       string
	Model     string
	PromptID  string
	MaxTokens int
	// Progress, if set, receives a rough percentage as stages finish.
	Progress func(pct int)
}

func (r Request) progress(pct int) {
	if r.Progress != nil {
		r.Progress(pct)
	}
}

// Result is everything produced for one video.
type Result struct {
	VideoID           string                  `json:"videoId"`
	Title             string                  `json:"title"`
	Filename          string                  `json:"filename"`
	FilePath          string                  `json:"filePath"`
	Markdown          string                  `json:"markdown"`
	Video             *models.VideoMetadata   `json:"videoInfo"`
	TranscriptStatus  models.TranscriptStatus `json:"transcriptStatus"`
	TranscriptSource  transcript.Source       `json:"transcriptSource"`
	Attempts          []transcript.Attempt    `json:"attempts"`
	CaptionTracks     int                     `json:"captionTracks"`
	CaptionProbeError string                  `json:"captionProbeError,omitempty"`
}

// Analyzer wires the pipeline collaborators together.
type Analyzer struct {
	videos     VideoSource
	acquirer   TranscriptAcquirer
	summarizer Summarizer
	writer     DocumentWriter
	logger     *slog.Logger
	now        func() time.Time
}

func New(videos VideoSource, acquirer TranscriptAcquirer, sum Summarizer, writer DocumentWriter, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		videos:     videos,
		acquirer:   acquirer,
		summarizer: sum,
		writer:     writer,
		logger:     logger.With(slog.String("component", "analysis")),
		now:        time.Now,
	}
}

// Analyze produces and saves the markdown notes for req.URL. A missing
// transcript is not an error: the description is summarized instead and
// the outcome shows up in TranscriptStatus.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	videoID, ok := youtube.ExtractVideoID(req.URL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, req.URL)
	}
	if !a.videos.Configured() {
		return nil, youtube.ErrMissingAPIKey
	}
	if !a.summarizer.Configured() {
		return nil, summarizer.ErrMissingAPIKey
	}

	log := a.logger.With(slog.String("video_id", videoID))
	log.Info("analysis started")
	req.progress(5)

	meta, tr, probe, err := a.gather(ctx, videoID)
	if err != nil {
		return nil, err
	}
	req.progress(50)

	status := transcript.Classify(tr, probe)
	log.Info("transcript resolved",
		slog.String("status", string(status)),
		slog.String("source", string(tr.Source)),
		slog.Int("chars", len(tr.Text)),
		slog.Int("caption_tracks", probe.Tracks))

	input := tr.Text
	if input == "" {
		input = meta.Description
	}

	analysisText, err := a.summarizer.Analyze(ctx, summarizer.Request{
		Transcript: input,
		Metadata:   meta,
		Model:      req.Model,
		PromptID:   req.PromptID,
		MaxTokens:  req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", videoID, err)
	}
	req.progress(80)

	title := a.summarizer.GenerateTitle(ctx, input, meta, req.Model)
	now := a.now()

	markdown, err := templates.RenderMarkdown(templates.Document{
		Title:            title,
		Video:            meta,
		Analysis:         analysisText,
		TranscriptStatus: status,
		TranscriptSource: string(tr.Source),
		Model:            req.Model,
		GeneratedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	filename := templates.Filename(title, now)
	path, err := a.writer.Save(filename, markdown)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", filename, err)
	}
	req.progress(100)

	log.Info("analysis finished", slog.String("file", filename))

	res := &Result{
		VideoID:          videoID,
		Title:            title,
		Filename:         filename,
		FilePath:         path,
		Markdown:         markdown,
		Video:            meta,
		TranscriptStatus: status,
		TranscriptSource: tr.Source,
		Attempts:         tr.Attempts,
		CaptionTracks:    probe.Tracks,
	}
	if probe.Err != nil {
		res.CaptionProbeError = probe.Err.Error()
	}
	return res, nil
}

// gather fetches metadata and probes captions in the background while the
// acquisition chain runs. Only a metadata failure is fatal.
func (a *Analyzer) gather(ctx context.Context, videoID string) (*models.VideoMetadata, transcript.Result, transcript.Probe, error) {
	var (
		meta  *models.VideoMetadata
		probe transcript.Probe
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.videos.Metadata(gctx, videoID)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", videoID, err)
		}
		m.VideoID = videoID
		meta = m
		return nil
	})
	g.Go(func() error {
		probe = a.probe(gctx, videoID)
		return nil
	})

	tr := a.acquirer.Acquire(gctx, videoID)

	if err := g.Wait(); err != nil {
		return nil, tr, probe, err
	}
	return meta, tr, probe, nil
}

// probe lists English caption tracks. Failures are logged and reported on
// the Probe, never returned.
func (a *Analyzer) probe(ctx context.Context, videoID string) transcript.Probe {
	tracks, err := a.videos.CaptionTracks(ctx, videoID)
	if err != nil {
		a.logger.Warn("caption probe failed",
			slog.String("video_id", videoID),
			slog.Any("error", err))
		return transcript.Probe{Err: err}
	}
	return transcript.Probe{Tracks: len(tracks)}
}

// TranscriptReport is the diagnostic view of one acquisition.
type TranscriptReport struct {
	VideoID           string                  `json:"videoId"`
	Status            models.TranscriptStatus `json:"status"`
	Result            transcript.Result       `json:"result"`
	CaptionTracks     int                     `json:"captionTracks"`
	CaptionProbeError string                  `json:"captionProbeError,omitempty"`
}

// Transcript runs only the acquisition chain and the probe, without
// metadata or summarization. The probe is skipped when no api key is set.
func (a *Analyzer) Transcript(ctx context.Context, rawURL string) (*TranscriptReport, error) {
	videoID, ok := youtube.ExtractVideoID(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	var probe transcript.Probe
	g, gctx := errgroup.WithContext(ctx)
	if a.videos.Configured() {
		g.Go(func() error {
			probe = a.probe(gctx, videoID)
			return nil
		})
	} else {
		probe.Err = youtube.ErrMissingAPIKey
	}
	tr := a.acquirer.Acquire(gctx, videoID)
	_ = g.Wait()

	rep := &TranscriptReport{
		VideoID:       videoID,
		Status:        transcript.Classify(tr, probe),
		Result:        tr,
		CaptionTracks: probe.Tracks,
	}
	if probe.Err != nil {
		rep.CaptionProbeError = probe.Err.Error()
	}
	return rep, nil
}
