package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job kinds
const (
	KindRefresh  = "refresh"
	KindValidate = "validate"
)

// Job asks a worker to rebuild the migration info of a target
type Job struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	Target      *MigrationTarget       `json:"target,omitempty"`
	RequestedBy string                 `json:"requested_by,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// MigrationTarget specifies which migration source a job is about
type MigrationTarget struct {
	Backend    string `json:"backend,omitempty"`
	Schema     string `json:"schema,omitempty"`
	Connection string `json:"connection,omitempty"`
}

// Key routes jobs of one target to the same partition, so a target's jobs
// are handled in publish order. Unset parts are "*".
func (t *MigrationTarget) Key() string {
	if t == nil {
		return "*/*/*"
	}
	part := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	return part(t.Backend) + "/" + part(t.Connection) + "/" + part(t.Schema)
}

// JobResult represents the outcome of a refresh job
type JobResult struct {
	JobID   string         `json:"job_id"`
	Success bool           `json:"success"`
	Current string         `json:"current,omitempty"`
	Summary map[string]int `json:"summary,omitempty"`
	Errors  []string       `json:"errors,omitempty"`

	// Coalesced is set when an earlier refresh of the target already covered the job
	Coalesced bool `json:"coalesced,omitempty"`
}

// NewJob creates a job with a fresh ID
func NewJob(kind string, target *MigrationTarget) *Job {
	return &Job{
		ID:          NewJobID(),
		Kind:        kind,
		Target:      target,
		RequestedAt: time.Now().UTC(),
	}
}

// NewJobID returns a random job identifier
func NewJobID() string {
	return uuid.NewString()
}

// CheckKind rejects job kinds no worker handles
func CheckKind(kind string) error {
	switch kind {
	case KindRefresh, KindValidate:
		return nil
	default:
		return fmt.Errorf("unknown job kind: %s", kind)
	}
}

// Prepare assigns an ID, kind and request time when missing and checks the
// kind before the job is published
func Prepare(job *Job) error {
	if job.ID == "" {
		job.ID = NewJobID()
	}
	if job.Kind == "" {
		job.Kind = KindRefresh
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	return CheckKind(job.Kind)
}

// Encode serializes a job after Prepare
func Encode(job *Job) ([]byte, error) {
	if err := Prepare(job); err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// Decode deserializes a job; fallbackID is used when the payload has no ID
func Decode(data []byte, fallbackID string) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" {
		job.ID = fallbackID
	}
	if job.Kind == "" {
		job.Kind = KindRefresh
	}
	if err := CheckKind(job.Kind); err != nil {
		return nil, err
	}
	return &job, nil
}

// Producer publishes refresh jobs to the queue
type Producer interface {
	// PublishJob publishes a job to the queue
	PublishJob(ctx context.Context, job *Job) error

	// Close closes the producer connection
	Close() error
}

// Consumer consumes refresh jobs from the queue
type Consumer interface {
	// Consume starts consuming jobs from the queue
	// The handler function is called for each job
	Consume(ctx context.Context, handler JobHandler) error

	// Close closes the consumer connection
	Close() error
}

// JobHandler processes a job
type JobHandler func(ctx context.Context, job *Job) (*JobResult, error)

// Queue provides both producer and consumer capabilities
type Queue interface {
	Producer
	Consumer
}

// LogResult reports a handled job through logf and warnf
func LogResult(result *JobResult, logf, warnf func(format string, args ...interface{})) {
	if result == nil {
		return
	}
	if result.Coalesced {
		logf("Skipped job %s: covered by a newer refresh of the same target", result.JobID)
		return
	}
	if result.Success {
		logf("Processed job %s: current version %s, %v", result.JobID, result.Current, result.Summary)
		return
	}
	warnf("Job %s completed with errors: %v", result.JobID, result.Errors)
}
