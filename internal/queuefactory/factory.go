package queuefactory

import (
	"fmt"
	"strings"

	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/queue/kafka"
	"github.com/toolsascode/bfm/info/internal/queue/pulsar"
)

// QueueConfig holds configuration for creating a refresh job queue
type QueueConfig struct {
	Type               string   // "kafka" or "pulsar"
	KafkaBrokers       []string // Kafka broker addresses
	KafkaTopic         string   // Kafka topic name
	KafkaGroupID       string   // Kafka consumer group ID
	PulsarURL          string   // Pulsar service URL
	PulsarTopic        string   // Pulsar topic name
	PulsarSubscription string   // Pulsar subscription name
}

// FromConfig extracts the queue settings from the application config
func FromConfig(cfg *config.Config) *QueueConfig {
	return &QueueConfig{
		Type:               cfg.Queue.Type,
		KafkaBrokers:       cfg.Queue.KafkaBrokers,
		KafkaTopic:         cfg.Queue.KafkaTopic,
		KafkaGroupID:       cfg.Queue.KafkaGroupID,
		PulsarURL:          cfg.Queue.PulsarURL,
		PulsarTopic:        cfg.Queue.PulsarTopic,
		PulsarSubscription: cfg.Queue.PulsarSubscription,
	}
}

// NewQueue creates a new queue based on the configuration
func NewQueue(config *QueueConfig) (queue.Queue, error) {
	queueType := strings.ToLower(config.Type)
	if queueType == "" {
		queueType = "kafka" // Default to Kafka
	}

	switch queueType {
	case "kafka":
		if len(config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are required")
		}
		if config.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka topic is required")
		}
		if config.KafkaGroupID == "" {
			config.KafkaGroupID = "bfm-info-workers"
		}
		return kafka.NewQueue(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil

	case "pulsar":
		if config.PulsarURL == "" {
			return nil, fmt.Errorf("pulsar URL is required")
		}
		if config.PulsarTopic == "" {
			return nil, fmt.Errorf("pulsar topic is required")
		}
		if config.PulsarSubscription == "" {
			config.PulsarSubscription = "bfm-info-workers"
		}
		return pulsar.NewQueue(config.PulsarURL, config.PulsarTopic, config.PulsarSubscription)

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: kafka, pulsar)", config.Type)
	}
}
