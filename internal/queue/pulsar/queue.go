package pulsar

import (
	"context"
	"errors"
	"fmt"

	"github.com/toolsascode/bfm/info/internal/queue"
)

// Queue implements queue.Queue using Pulsar
type Queue struct {
	producer *Producer
	consumer *Consumer
}

// NewQueue creates a new Pulsar queue with both producer and consumer
func NewQueue(url, topic, subscriptionName string) (*Queue, error) {
	producer, err := NewProducer(url, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := NewConsumer(url, topic, subscriptionName)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &Queue{
		producer: producer,
		consumer: consumer,
	}, nil
}

// PublishJob publishes a job to Pulsar, keyed by its migration target so that
// jobs for one target are consumed in publish order. Jobs with an unknown kind
// are rejected before anything is sent.
func (q *Queue) PublishJob(ctx context.Context, job *queue.Job) error {
	if err := queue.Prepare(job); err != nil {
		return err
	}
	return q.producer.PublishJob(ctx, job)
}

// Consume starts consuming jobs from Pulsar. A refresh job already covered by a
// later completed refresh of its target is acknowledged without running.
func (q *Queue) Consume(ctx context.Context, handler queue.JobHandler) error {
	return q.consumer.Consume(ctx, queue.Coalesce(handler))
}

// Close closes both producer and consumer
func (q *Queue) Close() error {
	return errors.Join(q.producer.Close(), q.consumer.Close())
}
