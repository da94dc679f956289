package queue

import (
	"context"
	"errors"

	"github.com/z-wentao/tubenotes/pkg/models"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Queue hands analysis jobs to workers. Every dequeued job must be settled
// with Ack or Nack.
type Queue interface {
	Enqueue(ctx context.Context, job *models.AnalysisJob) error

	// Dequeue blocks until a job arrives, ctx is done or the queue closes.
	Dequeue(ctx context.Context) (*models.AnalysisJob, error)

	Ack(job *models.AnalysisJob) error

	// Nack rejects a job; with requeue it is delivered again later.
	Nack(job *models.AnalysisJob, requeue bool) error

	Close() error
}
