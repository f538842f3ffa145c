package state

import (
	"context"
	"sync"
	"time"

	"github.com/toolsascode/bfm/info/internal/logger"
)

// Refresher rebuilds a view from the migration history
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reindexer periodically re-reads the migration history so that changes made
// by other processes show up without an explicit refresh
type Reindexer struct {
	target   Refresher
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewReindexer creates a new reindexer
func NewReindexer(target Refresher, interval time.Duration) *Reindexer {
	return &Reindexer{target: target, interval: interval}
}

// Start starts the background reindexing process
func (r *Reindexer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reindex(ctx)
			}
		}
	}(r.done)
}

// Stop stops the background reindexing process and waits for it to exit
func (r *Reindexer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.done
	r.running = false
	r.mu.Unlock()

	<-done
}

func (r *Reindexer) reindex(ctx context.Context) {
	if err := r.target.Refresh(ctx); err != nil && ctx.Err() == nil {
		logger.Warnf("Background refresh failed: %v", err)
	}
}
