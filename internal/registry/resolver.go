package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/version"
)

// Resolver exposes the registered scripts of one target as resolved migrations
type Resolver struct {
	registry     Registry
	target       MigrationTarget
	dependencies *DependencyResolver
}

// NewResolver creates a resolver over the scripts in reg that match target
func NewResolver(reg Registry, target MigrationTarget) *Resolver {
	return &Resolver{
		registry:     reg,
		target:       target,
		dependencies: NewDependencyResolver(reg),
	}
}

// ResolveMigrations implements info.Resolver. Scripts whose dependencies are
// missing or cyclic fail the whole resolution, as do two scripts claiming the
// same version.
func (r *Resolver) ResolveMigrations(ctx context.Context) ([]info.ResolvedMigration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scripts, err := r.registry.FindByTarget(&r.target)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	if _, err := r.dependencies.ResolveDependencies(scripts); err != nil {
		return nil, err
	}

	seen := make(map[string]*backends.MigrationScript, len(scripts))
	resolved := make([]info.ResolvedMigration, 0, len(scripts))
	for _, script := range scripts {
		m, err := toResolved(script)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[m.Version.Key()]; ok {
			return nil, fmt.Errorf("found more than one migration with version %s: %s and %s", m.Version, prev.ID(), script.ID())
		}
		seen[m.Version.Key()] = script
		resolved = append(resolved, m)
	}
	return resolved, nil
}

func toResolved(script *backends.MigrationScript) (info.ResolvedMigration, error) {
	v, err := version.Parse(script.Version)
	if err != nil {
		return info.ResolvedMigration{}, fmt.Errorf("migration %s: %w", script.ID(), err)
	}

	typ := info.TypeSQL
	if script.ScriptFormat() == "json" {
		typ = info.TypeJSON
	}

	location := script.Location
	if location == "" {
		location = fmt.Sprintf("%s/%s/%s", script.Backend, script.Connection, script.ScriptName())
	}

	return info.ResolvedMigration{
		Version:          v,
		Description:      Describe(script.Name),
		Script:           script.ScriptName(),
		Checksum:         info.Checksum(script.Checksum()),
		Type:             typ,
		PhysicalLocation: location,
	}, nil
}

// Describe turns a script name into a human readable description
func Describe(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}
