package bootstrap

import (
	"context"
	"fmt"

	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/loader"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/registry"
	"github.com/toolsascode/bfm/info/internal/state"
	"github.com/toolsascode/bfm/info/internal/storefactory"
)

// Runtime holds the components shared by the server, the worker and the CLI
type Runtime struct {
	Config   *config.Config
	Registry registry.Registry
	Loader   *loader.Loader
	Store    state.HistoryStore
	Service  *info.Service
	Source   *registry.MigrationTarget
}

// SourceTarget returns the migration target selected by the source settings
func SourceTarget(cfg *config.Config) *registry.MigrationTarget {
	return &registry.MigrationTarget{
		Backend:    cfg.Source.Backend,
		Connection: cfg.Source.Connection,
	}
}

// New loads the migration scripts into reg and builds the info service over
// reg and store
func New(cfg *config.Config, reg registry.Registry, store state.HistoryStore) (*Runtime, error) {
	opts, err := cfg.InfoOptions()
	if err != nil {
		return nil, err
	}

	ld := loader.NewLoader(cfg.Source.SFMPath)
	if err := ld.LoadAll(reg); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	source := SourceTarget(cfg)
	return &Runtime{
		Config:   cfg,
		Registry: reg,
		Loader:   ld,
		Store:    store,
		Service:  info.NewService(registry.NewResolver(reg, *source), store, opts),
		Source:   source,
	}, nil
}

// Open connects and initializes the configured history store, then builds
// the runtime over the global registry
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, err := storefactory.NewHistoryStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}

	rt, err := New(cfg, registry.GlobalRegistry, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Infof("Using %s history store, %d migration script(s) registered",
		cfg.History.Backend, len(rt.Registry.GetAll()))
	return rt, nil
}

// Close releases the history store
func (r *Runtime) Close() error {
	r.Loader.StopWatching()
	return r.Store.Close()
}
