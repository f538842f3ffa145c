package storefactory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/state/postgresql"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.History.Backend = "postgresql"
	cfg.History.Driver = "pgx"
	cfg.History.Host = "db"
	cfg.History.Port = "5432"
	cfg.History.Username = "postgres"
	cfg.History.Password = "secret"
	cfg.History.Database = "migration_state"
	cfg.History.Schema = "core"
	cfg.History.Table = "history"
	cfg.History.EtcdEndpoints = []string{"etcd-1:2379", "etcd-2:2379"}
	cfg.History.EtcdPrefix = "/bfm/core"
	cfg.History.EtcdTimeout = 3 * time.Second
	return cfg
}

func TestPostgresConfig(t *testing.T) {
	pc := PostgresConfig(testConfig())
	assert.Equal(t, "pgx", pc.Driver)
	assert.Equal(t, "core", pc.Schema)
	assert.Equal(t, "history", pc.Table)
	assert.Equal(t, "postgres://postgres:secret@db:5432/migration_state?sslmode=disable", pc.ConnString())
}

func TestEtcdConnection(t *testing.T) {
	conn := EtcdConnection(testConfig())
	assert.Equal(t, "etcd", conn.Backend)
	assert.Equal(t, "etcd-1:2379,etcd-2:2379", conn.Extra["endpoints"])
	assert.Equal(t, "/bfm/core", conn.Extra["prefix"])
	assert.Equal(t, "3s", conn.Extra["timeout"])

	cfg := testConfig()
	cfg.History.EtcdTimeout = 0
	assert.Equal(t, "5s", EtcdConnection(cfg).Extra["timeout"])
}

func TestNewHistoryStore(t *testing.T) {
	store, err := NewHistoryStore(testConfig())
	require.NoError(t, err)
	assert.IsType(t, &postgresql.Store{}, store)
	assert.NoError(t, store.Close())

	cfg := testConfig()
	cfg.History.Backend = "mysql"
	_, err = NewHistoryStore(cfg)
	assert.Error(t, err)
}
