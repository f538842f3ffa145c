package info

import (
	"time"

	"github.com/toolsascode/bfm/info/internal/version"
)

// MigrationType is the kind of a migration as recorded in source or history.
type MigrationType string

const (
	TypeSQL        MigrationType = "SQL"
	TypeJSON       MigrationType = "JSON"
	TypeRepeatable MigrationType = "REPEATABLE"

	// TypeBaseline marks the baseline point in the history table.
	TypeBaseline MigrationType = "BASELINE"

	// TypeSchema marks the creation of the history table itself.
	TypeSchema MigrationType = "SCHEMA"
)

// IsSynthetic reports whether t is an administrative marker rather than a
// migration produced from a script.
func (t MigrationType) IsSynthetic() bool {
	return t == TypeBaseline || t == TypeSchema
}

// ResolvedMigration is a migration discovered from source definitions.
type ResolvedMigration struct {
	Version          version.Version
	Description      string
	Script           string
	Checksum         *int32
	Type             MigrationType
	PhysicalLocation string
}

// AppliedMigration is a row of the schema history table.
type AppliedMigration struct {
	InstalledRank int
	Version       version.Version
	Description   string
	Type          MigrationType
	Script        string
	Checksum      *int32
	InstalledOn   time.Time
	InstalledBy   string
	ExecutionTime time.Duration
	Success       bool
}

// Checksum returns a pointer to c, for building records in code.
func Checksum(c int32) *int32 {
	return &c
}

func copyChecksum(c *int32) *int32 {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func checksumsEqual(a, b *int32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
