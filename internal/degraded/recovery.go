// Package degraded probes a failing upstream on a Fibonacci backoff and clears
// its error history once it answers again, letting /health leave degraded
// without waiting for the error window to drain.
package degraded

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/hazard-risk-service/internal/traffic"
)

// ProbeFunc checks whether the upstream has recovered. nil means recovered.
type ProbeFunc func(ctx context.Context) error

// Recovery runs at most one probe sequence at a time for one source.
type Recovery struct {
	source         string
	probe          ProbeFunc
	initial, max   time.Duration
	attemptTimeout time.Duration
	clock          clockwork.Clock
	logger         *zap.Logger

	notify  chan struct{}
	running atomic.Bool
}

// NewRecovery returns a Recovery for source. Delays run 1, 2, 3, 5, 8... times
// initial, stopping at max. A nil clock uses the real clock.
func NewRecovery(source string, probe ProbeFunc, initial, max time.Duration, logger *zap.Logger, clock clockwork.Clock) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recovery{
		source:         source,
		probe:          probe,
		initial:        initial,
		max:            max,
		attemptTimeout: 10 * time.Second,
		clock:          clock,
		logger:         logger.With(zap.String("source", source)),
		notify:         make(chan struct{}, 1),
	}
}

// Notify asks for a probe sequence. Non-blocking; ignored while one is running.
func (r *Recovery) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Start listens for Notify until ctx is done.
func (r *Recovery) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.notify:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Run executes one probe sequence. It reports whether the source recovered.
// On success the source's error history is cleared.
func (r *Recovery) Run(ctx context.Context) bool {
	delays := fibDelays(r.initial, r.max)
	if len(delays) == 0 {
		return false
	}
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.clock.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		err := r.probe(attemptCtx)
		cancel()
		if err == nil {
			traffic.ClearSource(r.source)
			r.logger.Info("upstream recovered", zap.Int("attempt", i+1))
			return true
		}
		r.logger.Warn("recovery probe failed",
			zap.Int("attempt", i+1),
			zap.Int("attempts", len(delays)),
			zap.Error(err))
	}
	r.logger.Error("recovery exhausted; waiting for next degraded signal")
	return false
}

func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
