package metrics

import (
	"context"
	"time"

	"github.com/toolsascode/bfm/info/internal/info"
)

// InfoService is the part of the migration info service that gets instrumented
type InfoService interface {
	Refresh(ctx context.Context) error
	Validate() error
	Summary() map[info.State]int
}

// InstrumentedService refreshes an InfoService and publishes the result
type InstrumentedService struct {
	svc       InfoService
	collector *Collector
}

// Instrument wraps svc. A nil collector is allowed.
func (c *Collector) Instrument(svc InfoService) *InstrumentedService {
	return &InstrumentedService{svc: svc, collector: c}
}

// Refresh refreshes the wrapped service, then records the duration, the
// per-state counts and the validation outcome.
func (s *InstrumentedService) Refresh(ctx context.Context) error {
	start := time.Now()
	err := s.svc.Refresh(ctx)
	s.collector.RecordRefresh(time.Since(start), err)
	if err != nil {
		return err
	}
	s.collector.ObserveSummary(s.svc.Summary())
	s.collector.ObserveValidation(s.svc.Validate())
	return nil
}
