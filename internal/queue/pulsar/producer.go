package pulsar

import (
	"context"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/queue"
)

// Producer implements queue.Producer using Pulsar
type Producer struct {
	client   pulsar.Client
	producer pulsar.Producer
	topic    string
}

// NewProducer creates a new Pulsar producer
func NewProducer(url, topic string) (*Producer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Pulsar producer: %w", err)
	}

	return &Producer{
		client:   client,
		producer: producer,
		topic:    topic,
	}, nil
}

// PublishJob publishes a refresh job to Pulsar
func (p *Producer) PublishJob(ctx context.Context, job *queue.Job) error {
	msg, err := toMessage(job)
	if err != nil {
		return err
	}

	if _, err := p.producer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message to Pulsar: %w", err)
	}

	logger.Infof("Published %s job %s for %s to Pulsar topic %s", job.Kind, job.ID, job.Target.Key(), p.topic)
	return nil
}

// Close closes the Pulsar producer
func (p *Producer) Close() error {
	p.producer.Close()
	p.client.Close()
	return nil
}

func toMessage(job *queue.Job) (*pulsar.ProducerMessage, error) {
	data, err := queue.Encode(job)
	if err != nil {
		return nil, err
	}

	props := map[string]string{
		"job-id": job.ID,
		"kind":   job.Kind,
		"target": job.Target.Key(),
	}
	if job.Target != nil && job.Target.Connection != "" {
		props["connection"] = job.Target.Connection
	}

	return &pulsar.ProducerMessage{
		Payload:    data,
		Key:        job.Target.Key(),
		Properties: props,
	}, nil
}
