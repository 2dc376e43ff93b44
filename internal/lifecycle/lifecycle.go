// Package lifecycle holds the process drain flag shared by main and /health.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	since        atomic.Int64 // unix nanoseconds; 0 while serving
)

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
// /health reports shutting-down with 503 while it is set.
func SetShuttingDown(v bool) {
	if v {
		since.CompareAndSwap(0, time.Now().UnixNano())
	} else {
		since.Store(0)
	}
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// ShuttingDownSince returns when draining began, or the zero time.
func ShuttingDownSince() time.Time {
	ns := since.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
