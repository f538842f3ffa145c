package info

import (
	"time"

	"github.com/toolsascode/bfm/info/internal/version"
)

// MigrationInfo is the merged view of one version. It is immutable: a
// refresh produces new values rather than updating existing ones.
type MigrationInfo struct {
	version  version.Version
	resolved *ResolvedMigration
	applied  *AppliedMigration
	context  *Context
	state    State
}

func newMigrationInfo(v version.Version, resolved *ResolvedMigration, applied *AppliedMigration, ctx *Context) *MigrationInfo {
	return &MigrationInfo{
		version:  v,
		resolved: resolved,
		applied:  applied,
		context:  ctx,
		state:    deriveState(v, resolved, applied, ctx),
	}
}

// deriveState classifies one version. Every combination yields a state.
func deriveState(v version.Version, resolved *ResolvedMigration, applied *AppliedMigration, ctx *Context) State {
	if applied != nil {
		if applied.Type.IsSynthetic() {
			return StateBaseline
		}
		if resolved == nil {
			// Future needs something resolved to be ahead of; with an empty
			// source every applied migration is missing.
			if !ctx.LastResolved.IsEmpty() && v.Compare(ctx.LastResolved) > 0 {
				if applied.Success {
					return StateFutureSuccess
				}
				return StateFutureFailed
			}
			if applied.Success {
				return StateMissingSuccess
			}
			return StateMissingFailed
		}
		if applied.Success {
			return StateSuccess
		}
		return StateFailed
	}

	if v.Compare(ctx.Baseline) <= 0 {
		return StateBelowBaseline
	}

	state := StatePending
	if v.Compare(ctx.LastApplied) <= 0 {
		if !ctx.OutOfOrder {
			return StateIgnored
		}
		state = StateOutOfOrder
	}

	if !ctx.Target.IsCurrent() && v.Compare(ctx.Target) > 0 {
		return StateAboveTarget
	}
	return state
}

// Version returns the migration version.
func (m *MigrationInfo) Version() version.Version { return m.version }

// State returns the derived state.
func (m *MigrationInfo) State() State { return m.state }

// Resolved returns a copy of the resolved side, if any.
func (m *MigrationInfo) Resolved() (ResolvedMigration, bool) {
	if m.resolved == nil {
		return ResolvedMigration{}, false
	}
	r := *m.resolved
	r.Checksum = copyChecksum(r.Checksum)
	return r, true
}

// Applied returns a copy of the applied side, if any.
func (m *MigrationInfo) Applied() (AppliedMigration, bool) {
	if m.applied == nil {
		return AppliedMigration{}, false
	}
	a := *m.applied
	a.Checksum = copyChecksum(a.Checksum)
	return a, true
}

// Type prefers the applied type, falling back to the resolved one.
func (m *MigrationInfo) Type() MigrationType {
	if m.applied != nil {
		return m.applied.Type
	}
	return m.resolved.Type
}

// Description prefers the applied description.
func (m *MigrationInfo) Description() string {
	if m.applied != nil {
		return m.applied.Description
	}
	return m.resolved.Description
}

// Script prefers the applied script name.
func (m *MigrationInfo) Script() string {
	if m.applied != nil {
		return m.applied.Script
	}
	return m.resolved.Script
}

// Checksum prefers the applied checksum.
func (m *MigrationInfo) Checksum() *int32 {
	if m.applied != nil {
		return copyChecksum(m.applied.Checksum)
	}
	return copyChecksum(m.resolved.Checksum)
}

// InstalledOn is zero for migrations that were never applied.
func (m *MigrationInfo) InstalledOn() time.Time {
	if m.applied == nil {
		return time.Time{}
	}
	return m.applied.InstalledOn
}

// InstalledBy is empty for migrations that were never applied.
func (m *MigrationInfo) InstalledBy() string {
	if m.applied == nil {
		return ""
	}
	return m.applied.InstalledBy
}

// InstalledRank is zero for migrations that were never applied.
func (m *MigrationInfo) InstalledRank() int {
	if m.applied == nil {
		return 0
	}
	return m.applied.InstalledRank
}

// ExecutionTime is zero for migrations that were never applied.
func (m *MigrationInfo) ExecutionTime() time.Duration {
	if m.applied == nil {
		return 0
	}
	return m.applied.ExecutionTime
}

// Validate checks the integrity of this migration and returns the first
// problem found, or nil.
func (m *MigrationInfo) Validate() error {
	ctx := m.context

	if !ctx.PendingOrFuture && m.resolved == nil && !m.applied.Type.IsSynthetic() {
		return &ValidationError{
			Version: m.version,
			Kind:    KindNotResolved,
			Message: "Detected applied migration not resolved locally: " + m.version.String(),
		}
	}

	if (!ctx.PendingOrFuture && m.state == StatePending) || m.state == StateIgnored {
		return &ValidationError{
			Version: m.version,
			Kind:    KindNotApplied,
			Message: "Detected resolved migration not applied to database: " + m.version.String(),
		}
	}

	if m.resolved == nil || m.applied == nil || m.version.Compare(ctx.Baseline) <= 0 {
		return nil
	}

	if m.resolved.Type != m.applied.Type {
		return mismatch(m.version, KindTypeMismatch, "Type", string(m.applied.Type), string(m.resolved.Type))
	}
	if !checksumsEqual(m.resolved.Checksum, m.applied.Checksum) {
		return mismatch(m.version, KindChecksumMismatch, "Checksum", formatChecksum(m.applied.Checksum), formatChecksum(m.resolved.Checksum))
	}
	if m.resolved.Description != m.applied.Description {
		return mismatch(m.version, KindDescriptionMismatch, "Description", m.applied.Description, m.resolved.Description)
	}
	return nil
}
