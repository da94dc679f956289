package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-wentao/tubenotes/pkg/models"
)

func job() *models.AnalysisJob {
	return &models.AnalysisJob{JobID: uuid.NewString(), VideoURL: "https://youtu.be/dQw4w9WgXcQ", Status: models.StatusPending}
}

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)
	a, b := job(), job()

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))
	assert.ErrorIs(t, q.Enqueue(ctx, job()), ErrFull)
	assert.Equal(t, 2, q.Len())

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.JobID, got.JobID)
	require.NoError(t, q.Ack(got))

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.JobID, got.JobID)
}

func TestMemoryQueueNackRequeue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	a := job()
	require.NoError(t, q.Enqueue(ctx, a))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(got, true))

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.JobID, again.JobID)

	require.NoError(t, q.Nack(again, false))
	assert.Zero(t, q.Len())
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)

	errs := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errs <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}
	assert.ErrorIs(t, q.Enqueue(context.Background(), job()), ErrClosed)
}

func TestRabbitMQQueue(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}
	q, err := NewRabbitMQQueue(url, "tubenotes_test_"+uuid.NewString()[:8], 1, nil)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := job()
	require.NoError(t, q.Enqueue(ctx, a))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.JobID, got.JobID)
	assert.NotZero(t, got.DeliveryTag)
	require.NoError(t, q.Nack(got, true))

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.JobID, got.JobID)
	require.NoError(t, q.Ack(got))
}
