package http

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/hazard-risk-service/internal/observability"
)

const defaultDrainInterval = 50 * time.Millisecond

// requestTracker counts requests being served so shutdown can drain them.
// The httpRequestsInFlight gauge follows the same count.
type requestTracker struct {
	active atomic.Int64
	clock  clockwork.Clock
}

func newRequestTracker(clock clockwork.Clock) *requestTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &requestTracker{clock: clock}
}

// begin marks one request as started and returns the func that ends it.
// Calling the returned func more than once has no further effect.
func (t *requestTracker) begin() func() {
	t.active.Add(1)
	observability.HTTPRequestsInFlight.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.active.Add(-1)
			observability.HTTPRequestsInFlight.Dec()
		})
	}
}

func (t *requestTracker) count() int64 {
	return t.active.Load()
}

// drain returns once no request is active, checking every interval on the
// tracker's clock. When ctx ends first the error names how many remain.
func (t *requestTracker) drain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	if t.count() == 0 {
		return nil
	}
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d requests still in flight: %w", t.count(), ctx.Err())
		case <-ticker.Chan():
		}
		if t.count() == 0 {
			return nil
		}
	}
}

var inFlight = newRequestTracker(nil)

// InFlightCount returns the number of requests currently being served.
func InFlightCount() int64 {
	return inFlight.count()
}

// WaitForInFlight blocks until every in-flight request has finished or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return inFlight.drain(ctx, checkInterval)
}
