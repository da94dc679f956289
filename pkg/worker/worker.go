// Package worker drains the job queue and runs each job through the
// analysis pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/z-wentao/tubenotes/pkg/analysis"
	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/queue"
	"github.com/z-wentao/tubenotes/pkg/storage"
)

const DefaultJobTimeout = 30 * time.Minute

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

type Config struct {
	PoolSize   int
	JobTimeout time.Duration
	// RetryDelay is the pause after a failed dequeue.
	RetryDelay time.Duration
}

// Worker runs PoolSize goroutines, each handling one job at a time.
type Worker struct {
	queue    queue.Queue
	store    storage.Store
	analyzer Analyzer
	cfg      Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(q queue.Queue, store storage.Store, analyzer Analyzer, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		queue:    q,
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "worker")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.PoolSize; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	w.logger.Info("worker pool started", slog.Int("size", w.cfg.PoolSize))
}

// Stop cancels in-flight jobs and waits for every goroutine to exit.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker pool stopped")
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	log := w.logger.With(slog.Int("worker", id))

	for {
		job, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Warn("dequeue failed", slog.Any("error", err))
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.cfg.RetryDelay):
			}
			continue
		}
		w.process(log, job)
	}
}

func (w *Worker) process(log *slog.Logger, job *models.AnalysisJob) {
	log = log.With(slog.String("job_id", job.JobID))
	log.Info("job started", slog.String("url", job.VideoURL))
	start := time.Now()

	w.update(job.JobID, func(j *models.AnalysisJob) {
		j.Status = models.StatusProcessing
		j.Progress = 0
	})

	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.JobTimeout)
	defer cancel()

	res, err := w.analyzer.Analyze(ctx, analysis.Request{
		URL:       job.VideoURL,
		Model:     job.Model,
		PromptID:  job.PromptID,
		MaxTokens: job.MaxTokens,
		Progress: func(pct int) {
			w.update(job.JobID, func(j *models.AnalysisJob) { j.Progress = pct })
		},
	})

	// shutting down: hand the job back instead of recording a failure
	if err != nil && w.ctx.Err() != nil {
		log.Info("job interrupted by shutdown, requeueing")
		w.update(job.JobID, func(j *models.AnalysisJob) {
			j.Status = models.StatusPending
			j.Progress = 0
		})
		if nerr := w.queue.Nack(job, true); nerr != nil {
			log.Error("requeue failed", slog.Any("error", nerr))
		}
		return
	}

	if err != nil {
		log.Error("job failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		w.update(job.JobID, func(j *models.AnalysisJob) {
			j.Status = models.StatusFailed
			j.Error = err.Error()
			j.CompletedAt = time.Now()
		})
	} else {
		log.Info("job completed",
			slog.String("file", res.Filename),
			slog.String("transcript_status", string(res.TranscriptStatus)),
			slog.Duration("elapsed", time.Since(start)))
		w.update(job.JobID, func(j *models.AnalysisJob) {
			j.Status = models.StatusCompleted
			j.Progress = 100
			j.VideoID = res.VideoID
			j.Title = res.Title
			j.Filename = res.Filename
			j.Markdown = res.Markdown
			j.TranscriptStatus = res.TranscriptStatus
			j.TranscriptSource = string(res.TranscriptSource)
			j.CaptionProbeError = res.CaptionProbeError
			j.CompletedAt = time.Now()
		})
	}

	// the outcome is in the store either way, so the message is done
	if err := w.queue.Ack(job); err != nil {
		log.Error("ack failed", slog.Any("error", err))
	}
}

func (w *Worker) update(jobID string, fn func(*models.AnalysisJob)) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.Update(ctx, jobID, fn); err != nil {
		w.logger.Warn("job update failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
}
