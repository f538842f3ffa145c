package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/version"
)

// Marker descriptions written into the history for synthetic entries
const (
	SchemaMarkerDescription   = "<< BfM Schema Creation >>"
	BaselineMarkerDescription = "<< BfM Baseline >>"
	SchemaMarkerVersion       = "0"
)

// ErrHistoryNotEmpty is returned when a baseline is requested on a history
// that already holds migrations
var ErrHistoryNotEmpty = errors.New("cannot baseline: migration history is not empty")

// HistoryStore reads and writes the migration history of one target
type HistoryStore interface {
	info.HistoryStore

	// Initialize sets up the history storage and records a SCHEMA marker when
	// it created the namespace the history lives in
	Initialize(ctx context.Context) error

	// RecordBaseline inserts a BASELINE marker at the given version
	RecordBaseline(ctx context.Context, v version.Version, description, installedBy string) error

	// HealthCheck verifies the history storage is reachable
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}

// SchemaMarker builds the SCHEMA marker entry
func SchemaMarker(rank int, installedBy string, now time.Time) info.AppliedMigration {
	return info.AppliedMigration{
		InstalledRank: rank,
		Version:       version.MustParse(SchemaMarkerVersion),
		Description:   SchemaMarkerDescription,
		Type:          info.TypeSchema,
		Script:        SchemaMarkerDescription,
		InstalledOn:   now,
		InstalledBy:   installedBy,
		Success:       true,
	}
}

// BaselineMarker builds the BASELINE marker entry
func BaselineMarker(rank int, v version.Version, description, installedBy string, now time.Time) info.AppliedMigration {
	if description == "" {
		description = BaselineMarkerDescription
	}
	return info.AppliedMigration{
		InstalledRank: rank,
		Version:       v,
		Description:   description,
		Type:          info.TypeBaseline,
		Script:        BaselineMarkerDescription,
		InstalledOn:   now,
		InstalledBy:   installedBy,
		Success:       true,
	}
}

// CheckBaselineVersion rejects sentinels and the zero Version
func CheckBaselineVersion(v version.Version) error {
	if v.IsZero() || v.IsEmpty() || v.IsLatest() || v.IsCurrent() {
		return fmt.Errorf("invalid baseline version: %q", v.String())
	}
	return nil
}

// CanBaseline reports whether a history may receive a baseline: only SCHEMA
// markers are allowed to precede it
func CanBaseline(applied []info.AppliedMigration) error {
	for _, m := range applied {
		if m.Type != info.TypeSchema {
			return ErrHistoryNotEmpty
		}
	}
	return nil
}

// NextRank returns the installed rank for the next history entry
func NextRank(applied []info.AppliedMigration) int {
	rank := 0
	for _, m := range applied {
		if m.InstalledRank > rank {
			rank = m.InstalledRank
		}
	}
	return rank + 1
}
