package queue

import (
	"context"
	"sync"

	"github.com/z-wentao/tubenotes/pkg/models"
)

// MemoryQueue is a buffered channel. Jobs are lost on restart.
type MemoryQueue struct {
	jobs   chan *models.AnalysisJob
	closed chan struct{}
	mu     sync.RWMutex
	done   bool
}

func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MemoryQueue{
		jobs:   make(chan *models.AnalysisJob, bufferSize),
		closed: make(chan struct{}),
	}
}

// Enqueue never blocks; a full buffer returns ErrFull.
func (mq *MemoryQueue) Enqueue(_ context.Context, job *models.AnalysisJob) error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.done {
		return ErrClosed
	}

	select {
	case mq.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

func (mq *MemoryQueue) Dequeue(ctx context.Context) (*models.AnalysisJob, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-mq.closed:
		return nil, ErrClosed
	case job := <-mq.jobs:
		return job, nil
	}
}

func (mq *MemoryQueue) Ack(*models.AnalysisJob) error {
	return nil
}

func (mq *MemoryQueue) Nack(job *models.AnalysisJob, requeue bool) error {
	if !requeue {
		return nil
	}
	return mq.Enqueue(context.Background(), job)
}

// Len reports how many jobs are waiting.
func (mq *MemoryQueue) Len() int {
	return len(mq.jobs)
}

func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if !mq.done {
		mq.done = true
		close(mq.closed)
	}
	return nil
}
