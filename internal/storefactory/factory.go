package storefactory

import (
	"fmt"
	"strings"
	"time"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/state"
	"github.com/toolsascode/bfm/info/internal/state/etcd"
	"github.com/toolsascode/bfm/info/internal/state/postgresql"
)

// NewHistoryStore creates the history store selected by BFM_STATE_BACKEND
func NewHistoryStore(cfg *config.Config) (state.HistoryStore, error) {
	switch strings.ToLower(cfg.History.Backend) {
	case "", "postgresql":
		return postgresql.NewStore(PostgresConfig(cfg))

	case "etcd":
		return etcd.Connect(EtcdConnection(cfg))

	default:
		return nil, fmt.Errorf("unsupported history backend: %s (supported: postgresql, etcd)", cfg.History.Backend)
	}
}

// PostgresConfig extracts the postgres history settings
func PostgresConfig(cfg *config.Config) postgresql.Config {
	return postgresql.Config{
		Driver:   cfg.History.Driver,
		Host:     cfg.History.Host,
		Port:     cfg.History.Port,
		Username: cfg.History.Username,
		Password: cfg.History.Password,
		Database: cfg.History.Database,
		SSLMode:  cfg.History.SSLMode,
		Schema:   cfg.History.Schema,
		Table:    cfg.History.Table,
	}
}

// EtcdConnection expresses the etcd history settings as a connection config
func EtcdConnection(cfg *config.Config) *backends.ConnectionConfig {
	timeout := cfg.History.EtcdTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &backends.ConnectionConfig{
		Backend:  "etcd",
		Username: cfg.History.Username,
		Password: cfg.History.Password,
		Extra: map[string]string{
			"endpoints": strings.Join(cfg.History.EtcdEndpoints, ","),
			"prefix":    cfg.History.EtcdPrefix,
			"timeout":   timeout.String(),
		},
	}
}
