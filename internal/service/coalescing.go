package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// requestCoalescer shares one assessment cycle among concurrent callers for the same key.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. fn receives a context
// detached from any single caller and bounded by the coalescer timeout, so one
// caller giving up does not cancel the cycle for the rest. shared reports
// whether the result was delivered to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.Assessment, error)) (a models.Assessment, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if rc.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, rc.timeout)
			defer cancel()
		}
		return fn(runCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Assessment{}, res.Shared, res.Err
		}
		return res.Val.(models.Assessment), res.Shared, nil
	case <-ctx.Done():
		return models.Assessment{}, false, ctx.Err()
	}
}
