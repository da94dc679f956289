package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const publishTimeout = 5 * time.Second

// RabbitMQQueue publishes jobs to a durable queue and consumes them through
// a single consumer shared by all workers. Prefetch equals the worker count
// so each worker holds at most one unacknowledged delivery.
type RabbitMQQueue struct {
	url       string
	queueName string
	prefetch  int
	logger    *slog.Logger

	publishConn *amqp.Connection
	publishCh   *amqp.Channel
	publishMu   sync.Mutex

	consumeConn *amqp.Connection
	consumeCh   *amqp.Channel
	deliveries  <-chan amqp.Delivery
	// amqp channels are not safe for concurrent acks
	ackMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func NewRabbitMQQueue(url, queueName string, prefetch int, logger *slog.Logger) (*RabbitMQQueue, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	rq := &RabbitMQQueue{
		url:       url,
		queueName: queueName,
		prefetch:  prefetch,
		logger:    logger.With(slog.String("component", "rabbitmq"), slog.String("queue", queueName)),
		closed:    make(chan struct{}),
	}

	if err := rq.setupPublisher(); err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: %w", err)
	}
	if err := rq.setupConsumer(); err != nil {
		rq.closePublisher()
		return nil, fmt.Errorf("rabbitmq consumer: %w", err)
	}

	rq.logger.Info("rabbitmq queue ready", slog.Int("prefetch", prefetch))
	return rq, nil
}

func (rq *RabbitMQQueue) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(rq.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	return conn, ch, nil
}

func (rq *RabbitMQQueue) setupPublisher() error {
	conn, ch, err := rq.dial()
	if err != nil {
		return err
	}
	rq.publishConn, rq.publishCh = conn, ch
	return nil
}

func (rq *RabbitMQQueue) setupConsumer() error {
	conn, ch, err := rq.dial()
	if err != nil {
		return err
	}
	if err := ch.Qos(rq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(rq.queueName, "tubenotes-worker", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("consume: %w", err)
	}
	rq.consumeConn, rq.consumeCh, rq.deliveries = conn, ch, deliveries
	return nil
}

func (rq *RabbitMQQueue) Enqueue(ctx context.Context, job *models.AnalysisJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()

	err = rq.publishCh.PublishWithContext(ctx, "", rq.queueName, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.JobID,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.JobID, err)
	}
	return nil
}

func (rq *RabbitMQQueue) Dequeue(ctx context.Context) (*models.AnalysisJob, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-rq.closed:
			return nil, ErrClosed
		case d, ok := <-rq.deliveries:
			if !ok {
				return nil, ErrClosed
			}

			var job models.AnalysisJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				rq.logger.Error("dropping undecodable message", slog.Uint64("delivery_tag", d.DeliveryTag), slog.Any("error", err))
				rq.settle(func() error { return d.Nack(false, false) })
				continue
			}
			job.DeliveryTag = d.DeliveryTag
			job.Delivery = d
			return &job, nil
		}
	}
}

func (rq *RabbitMQQueue) Ack(job *models.AnalysisJob) error {
	d, ok := job.Delivery.(amqp.Delivery)
	if !ok {
		return nil
	}
	return rq.settle(func() error { return d.Ack(false) })
}

func (rq *RabbitMQQueue) Nack(job *models.AnalysisJob, requeue bool) error {
	d, ok := job.Delivery.(amqp.Delivery)
	if !ok {
		return nil
	}
	return rq.settle(func() error { return d.Nack(false, requeue) })
}

func (rq *RabbitMQQueue) settle(fn func() error) error {
	rq.ackMu.Lock()
	defer rq.ackMu.Unlock()
	return fn()
}

// Stats returns the number of ready messages and consumers.
func (rq *RabbitMQQueue) Stats() (messages, consumers int, err error) {
	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()

	q, err := rq.publishCh.QueueDeclarePassive(rq.queueName, true, false, false, false, nil)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

func (rq *RabbitMQQueue) Close() error {
	rq.closeOnce.Do(func() {
		close(rq.closed)
		if rq.consumeCh != nil {
			rq.consumeCh.Close()
		}
		if rq.consumeConn != nil {
			rq.consumeConn.Close()
		}
		rq.closePublisher()
		rq.logger.Info("rabbitmq queue closed")
	})
	return nil
}

func (rq *RabbitMQQueue) closePublisher() {
	if rq.publishCh != nil {
		rq.publishCh.Close()
	}
	if rq.publishConn != nil {
		rq.publishConn.Close()
	}
}
