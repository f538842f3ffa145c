package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/version"
)

// Config holds the application configuration
type Config struct {
	Server struct {
		HTTPPort    string
		GRPCPort    string
		APIToken    string
		MetricsPort string // worker metrics listener; empty disables
	}
	History struct {
		Backend       string // "postgresql" or "etcd"
		Driver        string // "postgres" (lib/pq) or "pgx"
		Host          string
		Port          string
		Username      string
		Password      string
		Database      string
		Schema        string
		Table         string
		SSLMode       string
		EtcdEndpoints []string
		EtcdPrefix    string
		EtcdTimeout   time.Duration
	}
	Source struct {
		SFMPath       string
		Backend       string // defaults to the history backend
		Connection    string // optional filter
		WatchInterval time.Duration
	}
	Info struct {
		Target          string // "latest", "current" or a version
		OutOfOrder      bool
		PendingOrFuture bool
		RefreshInterval time.Duration // periodic history refresh; 0 disables
	}
	Queue struct {
		Type               string   // "kafka" or "pulsar"
		KafkaBrokers       []string // Kafka broker addresses
		KafkaTopic         string   // Kafka topic name
		KafkaGroupID       string   // Kafka consumer group ID
		PulsarURL          string   // Pulsar service URL
		PulsarTopic        string   // Pulsar topic name
		PulsarSubscription string   // Pulsar subscription name
		Enabled            bool     // Whether to use queue (false = synchronous refresh)
	}
	LogLevel string
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"server.http_port":          "BFM_HTTP_PORT",
	"server.grpc_port":          "BFM_GRPC_PORT",
	"server.api_token":          "BFM_API_TOKEN",
	"server.metrics_port":       "BFM_METRICS_PORT",
	"history.backend":           "BFM_STATE_BACKEND",
	"history.driver":            "BFM_STATE_DB_DRIVER",
	"history.host":              "BFM_STATE_DB_HOST",
	"history.port":              "BFM_STATE_DB_PORT",
	"history.username":          "BFM_STATE_DB_USERNAME",
	"history.password":          "BFM_STATE_DB_PASSWORD",
	"history.database":          "BFM_STATE_DB_NAME",
	"history.schema":            "BFM_STATE_SCHEMA",
	"history.table":             "BFM_STATE_TABLE",
	"history.sslmode":           "BFM_STATE_DB_SSLMODE",
	"history.etcd.endpoints":    "BFM_STATE_ETCD_ENDPOINTS",
	"history.etcd.prefix":       "BFM_STATE_ETCD_PREFIX",
	"history.etcd.timeout":      "BFM_STATE_ETCD_TIMEOUT",
	"source.sfm_path":           "BFM_SFM_PATH",
	"source.backend":            "BFM_SOURCE_BACKEND",
	"source.connection":         "BFM_SOURCE_CONNECTION",
	"source.watch_interval":     "BFM_SFM_WATCH_INTERVAL",
	"info.target":               "BFM_TARGET",
	"info.out_of_order":         "BFM_OUT_OF_ORDER",
	"info.pending_or_future":    "BFM_PENDING_OR_FUTURE",
	"info.refresh_interval":     "BFM_REFRESH_INTERVAL",
	"queue.enabled":             "BFM_QUEUE_ENABLED",
	"queue.type":                "BFM_QUEUE_TYPE",
	"queue.kafka.brokers":       "BFM_QUEUE_KAFKA_BROKERS",
	"queue.kafka.host":          "BFM_QUEUE_KAFKA_HOST",
	"queue.kafka.port":          "BFM_QUEUE_KAFKA_PORT",
	"queue.kafka.topic":         "BFM_QUEUE_KAFKA_TOPIC",
	"queue.kafka.group_id":      "BFM_QUEUE_KAFKA_GROUP_ID",
	"queue.pulsar.url":          "BFM_QUEUE_PULSAR_URL",
	"queue.pulsar.topic":        "BFM_QUEUE_PULSAR_TOPIC",
	"queue.pulsar.subscription": "BFM_QUEUE_PULSAR_SUBSCRIPTION",
	"log_level":                 "BFM_LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", "7070")
	v.SetDefault("server.grpc_port", "9090")

	v.SetDefault("history.backend", "postgresql")
	v.SetDefault("history.driver", "postgres")
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", "5432")
	v.SetDefault("history.username", "postgres")
	v.SetDefault("history.database", "migration_state")
	v.SetDefault("history.schema", "public")
	v.SetDefault("history.table", "bfm_schema_history")
	v.SetDefault("history.sslmode", "disable")
	v.SetDefault("history.etcd.endpoints", "localhost:2379")
	v.SetDefault("history.etcd.prefix", "/bfm/history")
	v.SetDefault("history.etcd.timeout", "5s")

	v.SetDefault("source.sfm_path", "./sfm")
	v.SetDefault("source.watch_interval", "5s")

	v.SetDefault("info.target", "latest")
	v.SetDefault("info.out_of_order", false)
	v.SetDefault("info.pending_or_future", true)
	v.SetDefault("info.refresh_interval", "30s")

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.type", "kafka")
	v.SetDefault("queue.kafka.host", "localhost")
	v.SetDefault("queue.kafka.port", "9092")
	v.SetDefault("queue.kafka.topic", "bfm-info-refresh")
	v.SetDefault("queue.kafka.group_id", "bfm-info-workers")
	v.SetDefault("queue.pulsar.url", "pulsar://localhost:6650")
	v.SetDefault("queue.pulsar.topic", "bfm-info-refresh")
	v.SetDefault("queue.pulsar.subscription", "bfm-info-workers")

	v.SetDefault("log_level", "info")
}

// LoadFromEnv loads configuration from environment variables. A .env file in
// the working directory is read first, and BFM_CONFIG_FILE may point to a
// YAML file; environment variables always win over both.
func LoadFromEnv() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("BFM_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return fromViper(v)
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{}

	config.Server.HTTPPort = v.GetString("server.http_port")
	config.Server.GRPCPort = v.GetString("server.grpc_port")
	config.Server.APIToken = v.GetString("server.api_token")
	config.Server.MetricsPort = v.GetString("server.metrics_port")

	config.History.Backend = strings.ToLower(v.GetString("history.backend"))
	config.History.Driver = strings.ToLower(v.GetString("history.driver"))
	config.History.Host = v.GetString("history.host")
	config.History.Port = v.GetString("history.port")
	config.History.Username = v.GetString("history.username")
	config.History.Password = v.GetString("history.password")
	config.History.Database = v.GetString("history.database")
	config.History.Schema = v.GetString("history.schema")
	config.History.Table = v.GetString("history.table")
	config.History.SSLMode = v.GetString("history.sslmode")
	config.History.EtcdEndpoints = stringList(v.Get("history.etcd.endpoints"))
	config.History.EtcdPrefix = v.GetString("history.etcd.prefix")
	config.History.EtcdTimeout = v.GetDuration("history.etcd.timeout")

	config.Source.SFMPath = v.GetString("source.sfm_path")
	config.Source.Backend = strings.ToLower(v.GetString("source.backend"))
	if config.Source.Backend == "" {
		// The history store tracks the scripts of its own backend
		config.Source.Backend = config.History.Backend
	}
	config.Source.Connection = v.GetString("source.connection")
	config.Source.WatchInterval = v.GetDuration("source.watch_interval")

	config.Info.Target = v.GetString("info.target")
	config.Info.OutOfOrder = v.GetBool("info.out_of_order")
	config.Info.PendingOrFuture = v.GetBool("info.pending_or_future")
	config.Info.RefreshInterval = v.GetDuration("info.refresh_interval")

	config.Queue.Enabled = v.GetBool("queue.enabled")
	config.Queue.Type = strings.ToLower(v.GetString("queue.type"))
	config.Queue.KafkaBrokers = stringList(v.Get("queue.kafka.brokers"))
	if len(config.Queue.KafkaBrokers) == 0 {
		config.Queue.KafkaBrokers = []string{fmt.Sprintf("%s:%s", v.GetString("queue.kafka.host"), v.GetString("queue.kafka.port"))}
	}
	config.Queue.KafkaTopic = v.GetString("queue.kafka.topic")
	config.Queue.KafkaGroupID = v.GetString("queue.kafka.group_id")
	config.Queue.PulsarURL = v.GetString("queue.pulsar.url")
	config.Queue.PulsarTopic = v.GetString("queue.pulsar.topic")
	config.Queue.PulsarSubscription = v.GetString("queue.pulsar.subscription")

	config.LogLevel = v.GetString("log_level")

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.History.Backend {
	case "postgresql", "etcd":
	default:
		return fmt.Errorf("unsupported history backend: %s", c.History.Backend)
	}
	switch c.History.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported postgres driver: %s", c.History.Driver)
	}
	if c.History.Backend == "etcd" && len(c.History.EtcdEndpoints) == 0 {
		return fmt.Errorf("BFM_STATE_ETCD_ENDPOINTS is required for the etcd history backend")
	}
	if c.Queue.Enabled && c.Queue.Type != "kafka" && c.Queue.Type != "pulsar" {
		return fmt.Errorf("unsupported queue type: %s", c.Queue.Type)
	}
	return nil
}

// RequireAPIToken fails when no API token is configured. The server needs one;
// the CLI does not.
func (c *Config) RequireAPIToken() error {
	if c.Server.APIToken == "" {
		return fmt.Errorf("BFM_API_TOKEN environment variable is required")
	}
	return nil
}

// InfoOptions converts the info section into service options
func (c *Config) InfoOptions() (info.Options, error) {
	target, err := version.ParseTarget(c.Info.Target)
	if err != nil {
		return info.Options{}, fmt.Errorf("invalid BFM_TARGET: %w", err)
	}
	return info.Options{
		Target:          target,
		OutOfOrder:      c.Info.OutOfOrder,
		PendingOrFuture: c.Info.PendingOrFuture,
	}, nil
}

// stringList accepts a comma separated string or a YAML list.
func stringList(raw interface{}) []string {
	var items []string
	switch val := raw.(type) {
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []interface{}:
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
