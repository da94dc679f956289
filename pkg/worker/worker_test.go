package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-wentao/tubenotes/pkg/analysis"
	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/queue"
	"github.com/z-wentao/tubenotes/pkg/storage"
)

type fakeAnalyzer struct {
	fn func(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

func (f fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	return f.fn(ctx, req)
}

func submit(t *testing.T, q queue.Queue, s storage.Store, url string) string {
	t.Helper()
	job := &models.AnalysisJob{
		JobID:     uuid.NewString(),
		VideoURL:  url,
		Model:     "m",
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Save(context.Background(), job))
	require.NoError(t, q.Enqueue(context.Background(), job))
	return job.JobID
}

func waitDone(t *testing.T, s storage.Store, jobID string) *models.AnalysisJob {
	t.Helper()
	var job *models.AnalysisJob
	require.Eventually(t, func() bool {
		j, err := s.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestWorkerProcessesJobs(t *testing.T) {
	q, s := queue.NewMemoryQueue(10), storage.NewJobStore()
	an := fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
		req.Progress(50)
		if req.URL == "bad" {
			return nil, errors.New("invalid youtube url")
		}
		return &analysis.Result{
			VideoID:          "dQw4w9WgXcQ",
			Title:            "T",
			Filename:         "t_1.md",
			Markdown:         "# T",
			TranscriptStatus: models.TranscriptAvailable,
			TranscriptSource: "captions-primary",
		}, nil
	}}

	w := NewWorker(q, s, an, Config{PoolSize: 2}, nil)
	w.Start()
	defer w.Stop()

	ok := submit(t, q, s, "https://youtu.be/dQw4w9WgXcQ")
	bad := submit(t, q, s, "bad")

	job := waitDone(t, s, ok)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "t_1.md", job.Filename)
	assert.Equal(t, "# T", job.Markdown)
	assert.Equal(t, models.TranscriptAvailable, job.TranscriptStatus)
	assert.Equal(t, "captions-primary", job.TranscriptSource)
	assert.False(t, job.CompletedAt.IsZero())

	job = waitDone(t, s, bad)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, "invalid youtube url", job.Error)
}

func TestWorkerAppliesJobTimeout(t *testing.T) {
	q, s := queue.NewMemoryQueue(1), storage.NewJobStore()
	an := fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	w := NewWorker(q, s, an, Config{PoolSize: 1, JobTimeout: 20 * time.Millisecond}, nil)
	w.Start()
	defer w.Stop()

	job := waitDone(t, s, submit(t, q, s, "https://youtu.be/dQw4w9WgXcQ"))
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "deadline exceeded")
}

func TestWorkerStopRequeuesInFlightJob(t *testing.T) {
	q, s := queue.NewMemoryQueue(1), storage.NewJobStore()
	started := make(chan struct{})
	an := fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	w := NewWorker(q, s, an, Config{PoolSize: 1}, nil)
	w.Start()
	id := submit(t, q, s, "https://youtu.be/dQw4w9WgXcQ")

	<-started
	w.Stop()

	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, 1, q.Len())
}
