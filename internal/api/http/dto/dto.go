package dto

import (
	"errors"
	"time"

	"github.com/toolsascode/bfm/info/internal/info"
)

// MigrationInfoResponse represents one migration in an info listing
type MigrationInfoResponse struct {
	Version         string `json:"version" yaml:"version"`
	Description     string `json:"description" yaml:"description"`
	Type            string `json:"type" yaml:"type"`
	Script          string `json:"script,omitempty" yaml:"script,omitempty"`
	Checksum        *int32 `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	State           string `json:"state" yaml:"state"`
	StateCode       string `json:"state_code" yaml:"state_code"`
	InstalledRank   int    `json:"installed_rank,omitempty" yaml:"installed_rank,omitempty"`
	InstalledOn     string `json:"installed_on,omitempty" yaml:"installed_on,omitempty"`
	InstalledBy     string `json:"installed_by,omitempty" yaml:"installed_by,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms,omitempty" yaml:"execution_time_ms,omitempty"`
}

// InfoResponse represents a list of migrations with the engine's target
type InfoResponse struct {
	Target  string                  `json:"target" yaml:"target"`
	Current *MigrationInfoResponse  `json:"current,omitempty" yaml:"current,omitempty"`
	Items   []MigrationInfoResponse `json:"items" yaml:"items"`
	Total   int                     `json:"total" yaml:"total"`
	Summary map[string]int          `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// InfoFilters specifies filters for listing migrations
type InfoFilters struct {
	State string `form:"state"`
}

// ValidateResponse represents the outcome of a validation
type ValidateResponse struct {
	Valid   bool   `json:"valid" yaml:"valid"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// RefreshRequest asks for a refresh; with a queue configured the refresh runs
// on a worker
type RefreshRequest struct {
	Kind       string `json:"kind"` // "refresh" (default) or "validate"
	Backend    string `json:"backend"`
	Connection string `json:"connection"`
	Schema     string `json:"schema"`
}

// RefreshResponse represents the result of a refresh request
type RefreshResponse struct {
	Queued  bool           `json:"queued"`
	JobID   string         `json:"job_id,omitempty"`
	Current string         `json:"current,omitempty"`
	Summary map[string]int `json:"summary,omitempty"`
}

// ReindexResponse represents the result of rescanning the migration sources
type ReindexResponse struct {
	Changed int `json:"changed"`
	Total   int `json:"total"`
}

// FromMigrationInfo converts a migration info into its response form
func FromMigrationInfo(m *info.MigrationInfo) MigrationInfoResponse {
	resp := MigrationInfoResponse{
		Version:         m.Version().String(),
		Description:     m.Description(),
		Type:            string(m.Type()),
		Script:          m.Script(),
		Checksum:        m.Checksum(),
		State:           m.State().String(),
		StateCode:       m.State().Code(),
		InstalledRank:   m.InstalledRank(),
		InstalledBy:     m.InstalledBy(),
		ExecutionTimeMs: m.ExecutionTime().Milliseconds(),
	}
	if on := m.InstalledOn(); !on.IsZero() {
		resp.InstalledOn = on.UTC().Format(time.RFC3339)
	}
	return resp
}

// FromMigrationInfos converts a list of migration infos
func FromMigrationInfos(infos []*info.MigrationInfo) []MigrationInfoResponse {
	items := make([]MigrationInfoResponse, 0, len(infos))
	for _, m := range infos {
		items = append(items, FromMigrationInfo(m))
	}
	return items
}

// NewInfoResponse builds a listing of items against the given target
func NewInfoResponse(target string, current *info.MigrationInfo, items []*info.MigrationInfo) InfoResponse {
	resp := InfoResponse{
		Target: target,
		Items:  FromMigrationInfos(items),
		Total:  len(items),
	}
	if current != nil {
		cur := FromMigrationInfo(current)
		resp.Current = &cur
	}
	return resp
}

// FilterByState keeps the items in the given state
func FilterByState(items []*info.MigrationInfo, state info.State) []*info.MigrationInfo {
	filtered := items[:0:0]
	for _, m := range items {
		if m.State() == state {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// FromValidation converts the result of a validation
func FromValidation(err error) ValidateResponse {
	if err == nil {
		return ValidateResponse{Valid: true}
	}
	resp := ValidateResponse{Message: err.Error()}
	var verr *info.ValidationError
	if errors.As(err, &verr) {
		resp.Version = verr.Version.String()
		resp.Kind = string(verr.Kind)
	}
	return resp
}
