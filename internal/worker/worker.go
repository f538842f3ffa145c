package worker

import (
	"context"
	"fmt"

	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/registry"
)

// Service is the migration info service a worker refreshes
type Service interface {
	metrics.InfoService
	Current() *info.MigrationInfo
}

// Worker processes refresh and validate jobs from the queue
type Worker struct {
	service   Service
	refresher *metrics.InstrumentedService
	queue     queue.Consumer
	source    *registry.MigrationTarget
	metrics   *metrics.Collector
}

// NewWorker creates a new worker. source is the migration target the service
// was built for; nil accepts jobs for any target.
func NewWorker(svc Service, q queue.Consumer, source *registry.MigrationTarget, collector *metrics.Collector) *Worker {
	return &Worker{
		service:   svc,
		refresher: collector.Instrument(svc),
		queue:     q,
		source:    source,
		metrics:   collector,
	}
}

// Start consumes jobs until ctx is cancelled or the queue fails
func (w *Worker) Start(ctx context.Context) error {
	logger.Info("Starting migration info worker...")
	return w.queue.Consume(ctx, w.processJob)
}

// processJob refreshes the service and, for validate jobs, validates it.
// Only refresh failures are returned as errors so the queue can retry them;
// validation problems and foreign targets are reported in the result.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	logger.Infof("Processing %s job %s", job.Kind, job.ID)

	if !w.accepts(job.Target) {
		err := fmt.Errorf("job target %s/%s/%s is not served by this worker",
			job.Target.Backend, job.Target.Connection, job.Target.Schema)
		w.metrics.RecordJob(job.Kind, err)
		return &queue.JobResult{JobID: job.ID, Errors: []string{err.Error()}}, nil
	}

	if err := w.refresher.Refresh(ctx); err != nil {
		w.metrics.RecordJob(job.Kind, err)
		return &queue.JobResult{JobID: job.ID, Errors: []string{err.Error()}}, err
	}

	result := &queue.JobResult{
		JobID:   job.ID,
		Success: true,
		Summary: info.SummaryCodes(w.service.Summary()),
	}
	if cur := w.service.Current(); cur != nil {
		result.Current = cur.Version().String()
	}

	var jobErr error
	if job.Kind == queue.KindValidate {
		if jobErr = w.service.Validate(); jobErr != nil {
			result.Success = false
			result.Errors = []string{jobErr.Error()}
		}
	}
	w.metrics.RecordJob(job.Kind, jobErr)
	return result, nil
}

// accepts reports whether every field set on both target and the worker's
// source agrees
func (w *Worker) accepts(target *queue.MigrationTarget) bool {
	if target == nil || w.source == nil {
		return true
	}
	return matches(target.Backend, w.source.Backend) &&
		matches(target.Connection, w.source.Connection) &&
		matches(target.Schema, w.source.Schema)
}

func matches(requested, served string) bool {
	return requested == "" || served == "" || requested == served
}

// Stop stops the worker
func (w *Worker) Stop() error {
	logger.Info("Stopping migration info worker...")
	return w.queue.Close()
}
