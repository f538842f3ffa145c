package info

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/version"
)

// Resolver supplies the migrations available from source.
type Resolver interface {
	// ResolveMigrations returns every migration the source knows about, in
	// any order.
	ResolveMigrations(ctx context.Context) ([]ResolvedMigration, error)
}

// HistoryStore supplies the rows of the schema history table.
type HistoryStore interface {
	// AllAppliedMigrations returns the history ordered by installed rank.
	AllAppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}

// Options controls classification.
type Options struct {
	// Target is the highest version to consider runnable. The zero value and
	// version.Latest mean no limit; version.Current means the version of the
	// current migration.
	Target version.Version

	// OutOfOrder lets migrations below the last applied version run.
	OutOfOrder bool

	// PendingOrFuture tolerates pending migrations and applied migrations
	// missing from source during validation.
	PendingOrFuture bool
}

// DefaultOptions targets the latest version and tolerates pending and future
// migrations.
func DefaultOptions() Options {
	return Options{Target: version.Latest, PendingOrFuture: true}
}

type snapshot struct {
	infos   []*MigrationInfo
	context *Context
}

// Service reconciles resolved and applied migrations. Refresh replaces the
// cached result as a whole; readers always see a complete snapshot.
type Service struct {
	resolver Resolver
	history  HistoryStore
	opts     Options

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewService creates a service. Call Refresh before querying it.
func NewService(resolver Resolver, history HistoryStore, opts Options) *Service {
	if opts.Target.IsZero() {
		opts.Target = version.Latest
	}
	return &Service{
		resolver: resolver,
		history:  history,
		opts:     opts,
	}
}

// Options returns the options the service was created with.
func (s *Service) Options() Options {
	return s.opts
}

// Refresh reloads both sides and rebuilds the migration info.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolver.ResolveMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations: %w", err)
	}

	applied, err := s.history.AllAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	snap := merge(resolved, applied, s.opts)
	s.snap.Store(snap)

	logger.Debugf("Refreshed migration info: %d resolved, %d applied, %d versions (target %s)",
		len(resolved), len(applied), len(snap.infos), snap.context.Target)
	return nil
}

// merge unions both inputs by version and classifies each version.
func merge(resolved []ResolvedMigration, applied []AppliedMigration, opts Options) *snapshot {
	mctx := newContext(opts.Target, opts.OutOfOrder, opts.PendingOrFuture)
	mctx.observe(resolved, applied)

	versions := make(map[string]version.Version, len(resolved)+len(applied))
	resolvedByKey := make(map[string]*ResolvedMigration, len(resolved))
	for i := range resolved {
		r := resolved[i]
		r.Checksum = copyChecksum(r.Checksum)
		key := r.Version.Key()
		resolvedByKey[key] = &r
		versions[key] = r.Version
	}

	appliedByKey := make(map[string]*AppliedMigration, len(applied))
	for i := range applied {
		a := applied[i]
		a.Checksum = copyChecksum(a.Checksum)
		key := a.Version.Key()
		appliedByKey[key] = &a
		if _, ok := versions[key]; !ok {
			versions[key] = a.Version
		}
	}

	ordered := make([]version.Version, 0, len(versions))
	for _, v := range versions {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	build := func(c *Context) []*MigrationInfo {
		infos := make([]*MigrationInfo, 0, len(ordered))
		for _, v := range ordered {
			infos = append(infos, newMigrationInfo(v, resolvedByKey[v.Key()], appliedByKey[v.Key()], c))
		}
		return infos
	}

	infos := build(mctx)

	// A Current target depends on the classification it bounds, so it is
	// resolved after a first pass and every entry is derived again.
	if mctx.Target.IsCurrent() {
		target := version.Empty
		if cur := current(infos); cur != nil {
			target = cur.Version()
		}
		mctx = mctx.withTarget(target)
		infos = build(mctx)
	}

	return &snapshot{infos: infos, context: mctx}
}

func current(infos []*MigrationInfo) *MigrationInfo {
	for i := len(infos) - 1; i >= 0; i-- {
		if infos[i].State().IsApplied() {
			return infos[i]
		}
	}
	return nil
}

func (s *Service) load() *snapshot {
	if snap := s.snap.Load(); snap != nil {
		return snap
	}
	return &snapshot{context: newContext(s.opts.Target, s.opts.OutOfOrder, s.opts.PendingOrFuture)}
}

func (s *Service) filter(keep func(*MigrationInfo) bool) []*MigrationInfo {
	infos := s.load().infos
	out := make([]*MigrationInfo, 0, len(infos))
	for _, m := range infos {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// All returns every migration ordered by version.
func (s *Service) All() []*MigrationInfo {
	return s.filter(func(*MigrationInfo) bool { return true })
}

// Current returns the highest migration backed by a history record, or nil
// when nothing has been applied.
func (s *Service) Current() *MigrationInfo {
	return current(s.load().infos)
}

// Pending returns the migrations that will run next.
func (s *Service) Pending() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool { return m.State() == StatePending })
}

// Applied returns the migrations that were executed. Baseline and schema
// markers are history records but not executions, so they are left out.
func (s *Service) Applied() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool {
		return m.State().IsApplied() && m.State() != StateBaseline
	})
}

// Resolved returns the migrations known to the source.
func (s *Service) Resolved() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool { return m.State().IsResolved() })
}

// Failed returns the migrations whose last execution failed.
func (s *Service) Failed() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool { return m.State().IsFailed() })
}

// Future returns applied migrations newer than anything resolved.
func (s *Service) Future() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool { return m.State().IsFuture() })
}

// OutOfOrder returns resolved migrations that will run below the last
// applied version.
func (s *Service) OutOfOrder() []*MigrationInfo {
	return s.filter(func(m *MigrationInfo) bool { return m.State() == StateOutOfOrder })
}

// Validate returns the first integrity problem in version order, or nil.
func (s *Service) Validate() error {
	for _, m := range s.load().infos {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Target returns the target used by the last refresh, with Current already
// replaced by a concrete version.
func (s *Service) Target() version.Version {
	return s.load().context.Target
}

// Context returns a copy of the context built by the last refresh.
func (s *Service) Context() Context {
	return *s.load().context
}

// Summary counts migrations per state.
func (s *Service) Summary() map[State]int {
	counts := make(map[State]int)
	for _, m := range s.load().infos {
		counts[m.State()]++
	}
	return counts
}
