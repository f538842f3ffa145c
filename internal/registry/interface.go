package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/version"
)

// MigrationTarget specifies which migrations belong to a migration source
type MigrationTarget struct {
	Backend    string // Backend type filter
	Schema     string // Schema filter (optional)
	Connection string // Connection name filter
}

// Registry manages migration script registration and lookup
type Registry interface {
	// Register registers a migration script, replacing one with the same ID
	Register(migration *backends.MigrationScript) error

	// Unregister removes a migration script by ID
	Unregister(migrationID string)

	// FindByTarget finds migrations matching a target specification
	FindByTarget(target *MigrationTarget) ([]*backends.MigrationScript, error)

	// GetAll returns all registered migrations
	GetAll() []*backends.MigrationScript

	// GetByConnection returns migrations for a specific connection
	GetByConnection(connectionName string) []*backends.MigrationScript

	// GetByBackend returns migrations for a specific backend
	GetByBackend(backendName string) []*backends.MigrationScript

	// GetMigrationByName finds migrations by name across all connections/backends
	GetMigrationByName(name string) []*backends.MigrationScript

	// GetMigrationByVersion finds migrations by version across all connections/backends
	GetMigrationByVersion(version string) []*backends.MigrationScript
}

// GlobalRegistry is the global migration registry instance
var GlobalRegistry Registry = NewInMemoryRegistry()

// NewInMemoryRegistry creates a new in-memory registry
func NewInMemoryRegistry() Registry {
	return &inMemoryRegistry{
		migrations: make(map[string]*backends.MigrationScript),
	}
}

type inMemoryRegistry struct {
	mu         sync.RWMutex
	migrations map[string]*backends.MigrationScript
}

func (r *inMemoryRegistry) Register(migration *backends.MigrationScript) error {
	if migration == nil {
		return fmt.Errorf("migration is nil")
	}
	if migration.Name == "" {
		return fmt.Errorf("migration %s has no name", migration.Version)
	}
	if _, err := version.Parse(migration.Version); err != nil {
		return fmt.Errorf("migration %s: %w", migration.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrations[migration.ID()] = migration
	return nil
}

func (r *inMemoryRegistry) Unregister(migrationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.migrations, migrationID)
}

func (r *inMemoryRegistry) FindByTarget(target *MigrationTarget) ([]*backends.MigrationScript, error) {
	if target == nil {
		return r.GetAll(), nil
	}
	return r.filter(func(m *backends.MigrationScript) bool {
		if target.Backend != "" && m.Backend != target.Backend {
			return false
		}
		if target.Connection != "" && m.Connection != target.Connection {
			return false
		}
		if target.Schema != "" && m.Schema != target.Schema {
			return false
		}
		return true
	}), nil
}

func (r *inMemoryRegistry) GetAll() []*backends.MigrationScript {
	return r.filter(func(*backends.MigrationScript) bool { return true })
}

func (r *inMemoryRegistry) GetByConnection(connectionName string) []*backends.MigrationScript {
	return r.filter(func(m *backends.MigrationScript) bool { return m.Connection == connectionName })
}

func (r *inMemoryRegistry) GetByBackend(backendName string) []*backends.MigrationScript {
	return r.filter(func(m *backends.MigrationScript) bool { return m.Backend == backendName })
}

func (r *inMemoryRegistry) GetMigrationByName(name string) []*backends.MigrationScript {
	return r.filter(func(m *backends.MigrationScript) bool { return m.Name == name })
}

func (r *inMemoryRegistry) GetMigrationByVersion(v string) []*backends.MigrationScript {
	return r.filter(func(m *backends.MigrationScript) bool { return m.Version == v })
}

// filter returns matching migrations ordered by ID so callers see a stable order
func (r *inMemoryRegistry) filter(keep func(*backends.MigrationScript) bool) []*backends.MigrationScript {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*backends.MigrationScript
	for _, migration := range r.migrations {
		if keep(migration) {
			results = append(results, migration)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID() < results[j].ID()
	})
	return results
}
