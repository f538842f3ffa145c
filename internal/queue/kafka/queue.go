package kafka

import (
	"context"
	"errors"

	"github.com/toolsascode/bfm/info/internal/queue"
)

// Queue implements queue.Queue using Kafka
type Queue struct {
	producer *Producer
	consumer *Consumer
}

// NewQueue creates a new Kafka queue with both producer and consumer
func NewQueue(brokers []string, topic, groupID string) *Queue {
	return &Queue{
		producer: NewProducer(brokers, topic),
		consumer: NewConsumer(brokers, topic, groupID),
	}
}

// PublishJob publishes a job to Kafka, keyed by its migration target so that
// jobs for one target are consumed in publish order. Jobs with an unknown kind
// are rejected before anything is sent.
func (q *Queue) PublishJob(ctx context.Context, job *queue.Job) error {
	if err := queue.Prepare(job); err != nil {
		return err
	}
	return q.producer.PublishJob(ctx, job)
}

// Consume starts consuming jobs from Kafka. A refresh job already covered by a
// later completed refresh of its target is acknowledged without running.
func (q *Queue) Consume(ctx context.Context, handler queue.JobHandler) error {
	return q.consumer.Consume(ctx, queue.Coalesce(handler))
}

// Close closes both producer and consumer
func (q *Queue) Close() error {
	return errors.Join(q.producer.Close(), q.consumer.Close())
}
