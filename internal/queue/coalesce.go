package queue

import (
	"context"
	"sync"
	"time"
)

// Coalesce wraps handler so that a refresh job requested before a completed
// refresh of the same target started is acknowledged without running again.
// Validate jobs always run since they report a validation result.
func Coalesce(handler JobHandler) JobHandler {
	var (
		mu   sync.Mutex
		last = make(map[string]time.Time)
	)

	return func(ctx context.Context, job *Job) (*JobResult, error) {
		key := job.Target.Key()

		mu.Lock()
		covered := job.Kind == KindRefresh && !job.RequestedAt.IsZero() && job.RequestedAt.Before(last[key])
		mu.Unlock()
		if covered {
			return &JobResult{JobID: job.ID, Success: true, Coalesced: true}, nil
		}

		started := time.Now()
		result, err := handler(ctx, job)
		if err != nil || result == nil || !result.Success {
			return result, err
		}

		mu.Lock()
		if started.After(last[key]) {
			last[key] = started
		}
		mu.Unlock()
		return result, nil
	}
}
