package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/queue"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements queue.Producer using Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishJob publishes a refresh job to Kafka
func (p *Producer) PublishJob(ctx context.Context, job *queue.Job) error {
	message, err := toMessage(job)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	logger.Infof("Published %s job %s for %s to Kafka topic %s", job.Kind, job.ID, job.Target.Key(), p.topic)
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toMessage(job *queue.Job) (kafka.Message, error) {
	data, err := queue.Encode(job)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := []kafka.Header{
		{Key: "job-id", Value: []byte(job.ID)},
		{Key: "kind", Value: []byte(job.Kind)},
		{Key: "target", Value: []byte(job.Target.Key())},
	}
	if job.Target != nil && job.Target.Connection != "" {
		headers = append(headers, kafka.Header{Key: "connection", Value: []byte(job.Target.Connection)})
	}

	return kafka.Message{
		Key:     []byte(job.Target.Key()),
		Value:   data,
		Headers: headers,
	}, nil
}
