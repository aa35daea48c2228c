package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

// inFlightReload tracks a single store-wide reload that multiple callers may
// wait for.
type inFlightReload struct {
	mu      sync.Mutex
	result  []models.EnrichedPlace
	err     error
	done    bool
	waiters []chan struct{}
}

// reloadCoalescer collapses concurrent reload requests into one enrichment
// pass. A reload hits the store plus one provider call per entry, so letting
// bursts of mutations each run their own pass would multiply upstream load
// for identical results.
type reloadCoalescer struct {
	mu       sync.Mutex
	inFlight *inFlightReload
	timeout  time.Duration
}

func newReloadCoalescer(timeout time.Duration) *reloadCoalescer {
	return &reloadCoalescer{timeout: timeout}
}

// Do runs fn, or waits for an already-running fn, and returns its result.
// Respects context cancellation and timeout to prevent indefinite blocking.
func (rc *reloadCoalescer) Do(ctx context.Context, fn func() ([]models.EnrichedPlace, error)) ([]models.EnrichedPlace, error) {
	rc.mu.Lock()
	if req := rc.inFlight; req != nil {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-notify:
			req.mu.Lock()
			result, err := req.result, req.err
			req.mu.Unlock()
			return result, err
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		}
	}

	req := &inFlightReload{}
	rc.inFlight = req
	rc.mu.Unlock()

	result, err := fn()

	req.mu.Lock()
	req.result = result
	req.err = err
	req.done = true
	waiters := req.waiters
	req.waiters = nil
	req.mu.Unlock()

	for _, notify := range waiters {
		close(notify)
	}

	rc.mu.Lock()
	rc.inFlight = nil
	rc.mu.Unlock()

	return result, err
}
