package pulsar

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/queue"
)

// Consumer implements queue.Consumer using Pulsar
type Consumer struct {
	client   pulsar.Client
	consumer pulsar.Consumer
	topic    string
}

// NewConsumer creates a new Pulsar consumer
func NewConsumer(url, topic, subscriptionName string) (*Consumer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar client: %w", err)
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscriptionName,
		Type:             pulsar.KeyShared,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Pulsar consumer: %w", err)
	}

	return &Consumer{
		client:   client,
		consumer: consumer,
		topic:    topic,
	}, nil
}

// Consume receives jobs until ctx is cancelled. Malformed messages are
// acknowledged and dropped; failed jobs are negatively acknowledged so
// Pulsar redelivers them.
func (c *Consumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	logger.Infof("Starting Pulsar consumer for topic %s", c.topic)

	for {
		msg, err := c.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("Pulsar consumer context cancelled")
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message from Pulsar: %w", err)
		}

		job, err := decodeMessage(msg.Payload(), msg.Properties())
		if err != nil {
			logger.Errorf("Failed to decode job from Pulsar message: %v", err)
			if ackErr := c.consumer.Ack(msg); ackErr != nil {
				logger.Errorf("Failed to acknowledge malformed message: %v", ackErr)
			}
			continue
		}

		logger.Infof("Processing %s job %s from Pulsar", job.Kind, job.ID)

		result, err := handler(ctx, job)
		if err != nil {
			logger.Errorf("Failed to process job %s: %v", job.ID, err)
			c.consumer.Nack(msg)
			continue
		}

		if err := c.consumer.Ack(msg); err != nil {
			logger.Errorf("Failed to acknowledge message for job %s: %v", job.ID, err)
		}
		queue.LogResult(result, logger.Infof, logger.Warnf)
	}
}

// Close closes the Pulsar consumer
func (c *Consumer) Close() error {
	c.consumer.Close()
	c.client.Close()
	return nil
}

// decodeMessage decodes a job, taking the ID from the job-id property when
// the payload has none. The message key is the target, not the job.
func decodeMessage(payload []byte, props map[string]string) (*queue.Job, error) {
	return queue.Decode(payload, props["job-id"])
}
