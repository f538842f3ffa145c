package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/state"
	"github.com/toolsascode/bfm/info/internal/version"
)

// KV is the part of the etcd client the store needs
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

// record is the JSON document stored per history entry
type record struct {
	InstalledRank   int       `json:"installed_rank"`
	Version         string    `json:"version"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	Script          string    `json:"script"`
	Checksum        *int32    `json:"checksum,omitempty"`
	InstalledBy     string    `json:"installed_by"`
	InstalledOn     time.Time `json:"installed_on"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Success         bool      `json:"success"`
}

// Store implements state.HistoryStore with one key per history entry under a prefix
type Store struct {
	kv      KV
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
	user    string
}

// Connect creates an etcd client from a connection config. Endpoints come
// from Extra["endpoints"] (comma separated) or Host:Port; Extra["timeout"]
// and Extra["prefix"] are optional.
func Connect(config *backends.ConnectionConfig) (*Store, error) {
	endpoints := []string{fmt.Sprintf("%s:%s", config.Host, config.Port)}
	if config.Extra["endpoints"] != "" {
		endpoints = strings.Split(config.Extra["endpoints"], ",")
		for i, ep := range endpoints {
			endpoints[i] = strings.TrimSpace(ep)
		}
	}

	timeout := 5 * time.Second
	if timeoutStr := config.Extra["timeout"]; timeoutStr != "" {
		if parsed, err := time.ParseDuration(timeoutStr); err == nil {
			timeout = parsed
		}
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		Username:    config.Username,
		Password:    config.Password,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	store := NewStore(client, config.Extra["prefix"], timeout, config.Username)
	store.client = client
	return store, nil
}

// NewStore creates a store on top of any KV implementation
func NewStore(kv KV, prefix string, timeout time.Duration, installedBy string) *Store {
	if prefix == "" {
		prefix = "/bfm/history"
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if installedBy == "" {
		installedBy = "bfm"
	}
	return &Store{kv: kv, prefix: prefix, timeout: timeout, user: installedBy}
}

// key returns the entry key; ranks are zero padded so keys sort by rank
func (s *Store) key(rank int) string {
	return fmt.Sprintf("%s%010d", s.prefix, rank)
}

// Initialize records a SCHEMA marker when the prefix holds no history yet
func (s *Store) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return fmt.Errorf("failed to check history prefix: %w", err)
	}
	if resp.Count > 0 {
		return nil
	}

	if err := s.put(ctx, state.SchemaMarker(1, s.user, time.Now().UTC())); err != nil {
		return fmt.Errorf("failed to record schema marker: %w", err)
	}
	logger.Infof("Created etcd history under %s", s.prefix)
	return nil
}

// AllAppliedMigrations implements info.HistoryStore
func (s *Store) AllAppliedMigrations(ctx context.Context) ([]info.AppliedMigration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}

	applied := make([]info.AppliedMigration, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		m, err := decode(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("history entry %s: %w", string(kv.Key), err)
		}
		applied = append(applied, m)
	}
	sort.SliceStable(applied, func(i, j int) bool { return applied[i].InstalledRank < applied[j].InstalledRank })
	return applied, nil
}

// RecordBaseline inserts a BASELINE marker; the history must hold nothing but
// a SCHEMA marker
func (s *Store) RecordBaseline(ctx context.Context, v version.Version, description, installedBy string) error {
	if err := state.CheckBaselineVersion(v); err != nil {
		return err
	}
	applied, err := s.AllAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := state.CanBaseline(applied); err != nil {
		return err
	}
	if installedBy == "" {
		installedBy = s.user
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	marker := state.BaselineMarker(state.NextRank(applied), v, description, installedBy, time.Now().UTC())
	if err := s.put(ctx, marker); err != nil {
		return fmt.Errorf("failed to record baseline: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, m info.AppliedMigration) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, s.key(m.InstalledRank), string(data))
	return err
}

// HealthCheck performs a count-only read of the history prefix
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("etcd health check failed: %w", err)
	}
	return nil
}

// Close closes the etcd client when the store owns one
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func encode(m info.AppliedMigration) ([]byte, error) {
	return json.Marshal(record{
		InstalledRank:   m.InstalledRank,
		Version:         m.Version.String(),
		Description:     m.Description,
		Type:            string(m.Type),
		Script:          m.Script,
		Checksum:        m.Checksum,
		InstalledBy:     m.InstalledBy,
		InstalledOn:     m.InstalledOn,
		ExecutionTimeMs: m.ExecutionTime.Milliseconds(),
		Success:         m.Success,
	})
}

func decode(data []byte) (info.AppliedMigration, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return info.AppliedMigration{}, fmt.Errorf("invalid history record: %w", err)
	}
	v, err := version.Parse(r.Version)
	if err != nil {
		return info.AppliedMigration{}, err
	}
	return info.AppliedMigration{
		InstalledRank: r.InstalledRank,
		Version:       v,
		Description:   r.Description,
		Type:          info.MigrationType(strings.ToUpper(r.Type)),
		Script:        r.Script,
		Checksum:      r.Checksum,
		InstalledBy:   r.InstalledBy,
		InstalledOn:   r.InstalledOn,
		ExecutionTime: time.Duration(r.ExecutionTimeMs) * time.Millisecond,
		Success:       r.Success,
	}, nil
}
