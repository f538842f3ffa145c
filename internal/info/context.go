package info

import "github.com/toolsascode/bfm/info/internal/version"

// Context holds the facts shared by every MigrationInfo of one refresh.
type Context struct {
	LastResolved    version.Version
	LastApplied     version.Version
	Baseline        version.Version
	Schema          version.Version
	Target          version.Version
	OutOfOrder      bool
	PendingOrFuture bool
}

func newContext(target version.Version, outOfOrder, pendingOrFuture bool) *Context {
	return &Context{
		LastResolved:    version.Empty,
		LastApplied:     version.Empty,
		Baseline:        version.Empty,
		Schema:          version.Empty,
		Target:          target,
		OutOfOrder:      outOfOrder,
		PendingOrFuture: pendingOrFuture,
	}
}

// observe scans both inputs once. Duplicate baseline or schema markers are
// not rejected here; the last one seen wins.
func (c *Context) observe(resolved []ResolvedMigration, applied []AppliedMigration) {
	for i := range resolved {
		c.LastResolved = version.Max(c.LastResolved, resolved[i].Version)
	}

	for i := range applied {
		a := &applied[i]
		c.LastApplied = version.Max(c.LastApplied, a.Version)
		switch a.Type {
		case TypeSchema:
			c.Schema = a.Version
		case TypeBaseline:
			c.Baseline = a.Version
		}
	}
}

func (c *Context) withTarget(target version.Version) *Context {
	cp := *c
	cp.Target = target
	return &cp
}
