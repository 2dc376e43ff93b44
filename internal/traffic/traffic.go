// Package traffic keeps sliding windows of per-source upstream outcomes and
// rate-limit denials. /health derives its degraded state from it.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// retention bounds how long outcomes are kept regardless of query window.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

// RecordSuccess records a successful call to source.
func RecordSuccess(source string) {
	defaultTracker.RecordSuccess(source)
}

// RecordError records a failed call to source (transport, status, decode).
func RecordError(source string) {
	defaultTracker.RecordError(source)
}

// RecordDenied records a rate-limit denial (429) at the HTTP edge.
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// ErrorRate returns (errorCount, totalCount) for source within the window.
func ErrorRate(source string, window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(source, window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ClearSource drops the recorded outcomes of one source.
func ClearSource(source string) {
	defaultTracker.ClearSource(source)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// outcomes holds success and error timestamps for one source, oldest first.
type outcomes struct {
	successes []time.Time
	errors    []time.Time
}

// Tracker maintains sliding windows of outcome timestamps per source.
type Tracker struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	sources map[string]*outcomes
	denied  []time.Time
}

// NewTracker returns a Tracker reading time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{
		clock:   clock,
		sources: make(map[string]*outcomes),
	}
}

// RecordSuccess records a successful call to source.
func (t *Tracker) RecordSuccess(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.sourceLocked(source)
	o.successes = append(o.successes, t.clock.Now())
	t.pruneLocked()
}

// RecordError records a failed call to source.
func (t *Tracker) RecordError(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.sourceLocked(source)
	o.errors = append(o.errors, t.clock.Now())
	t.pruneLocked()
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.denied = append(t.denied, t.clock.Now())
	t.pruneLocked()
}

// ErrorRate returns (errorCount, totalCount) for source within the window.
func (t *Tracker) ErrorRate(source string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.sources[source]
	if !ok {
		return 0, 0
	}
	cutoff := t.clock.Now().Add(-window)
	errCount := countInWindow(o.errors, cutoff)
	return errCount, errCount + countInWindow(o.successes, cutoff)
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.denied, t.clock.Now().Add(-window))
}

// ClearSource drops the recorded outcomes of one source, so its error rate
// restarts from zero.
func (t *Tracker) ClearSource(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sources, source)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = make(map[string]*outcomes)
	t.denied = nil
}

func (t *Tracker) sourceLocked(source string) *outcomes {
	o, ok := t.sources[source]
	if !ok {
		o = &outcomes{}
		t.sources[source] = o
	}
	return o
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops entries older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked() {
	cutoff := t.clock.Now().Add(-retention)
	prune := func(times []time.Time) []time.Time {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			return append(times[:0], times[i:]...)
		}
		return times
	}
	for _, o := range t.sources {
		o.successes = prune(o.successes)
		o.errors = prune(o.errors)
	}
	t.denied = prune(t.denied)
}
