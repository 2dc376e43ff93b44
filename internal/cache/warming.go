package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
)

// maxWarmConcurrency bounds simultaneous assessment cycles during a warm run.
const maxWarmConcurrency = 4

// AssessmentFetcher is implemented by the service layer. A successful fetch
// populates the cache as a side effect.
type AssessmentFetcher interface {
	GetAssessment(ctx context.Context, c models.Coordinate) (models.Assessment, error)
}

// CacheWarmer prefetches assessments for a fixed list of coordinates.
type CacheWarmer struct {
	fetcher AssessmentFetcher
	logger  *zap.Logger
	clock   clockwork.Clock
}

// NewCacheWarmer creates a CacheWarmer on the real clock. logger may be nil.
func NewCacheWarmer(fetcher AssessmentFetcher, logger *zap.Logger) *CacheWarmer {
	return NewCacheWarmerWithClock(fetcher, logger, clockwork.NewRealClock())
}

// NewCacheWarmerWithClock creates a CacheWarmer whose periodic refresh runs on clock.
func NewCacheWarmerWithClock(fetcher AssessmentFetcher, logger *zap.Logger, clock clockwork.Clock) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, clock: clock}
}

// Warm fetches every point concurrently. Failures do not stop other points;
// they are joined into the returned error. A fetch that completes with a
// non-ok status counts as a failure since it was not cached.
func (w *CacheWarmer) Warm(ctx context.Context, points []models.Coordinate) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("points", len(points)))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWarmConcurrency)
	for _, p := range points {
		p := p
		g.Go(func() error {
			a, err := w.fetcher.GetAssessment(gctx, p)
			if err == nil && a.Status != models.StatusOK {
				err = fmt.Errorf("status %s", a.Status)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", p.Key(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("points", len(points)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes every interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, points []models.Coordinate, interval time.Duration) error {
	if err := w.Warm(ctx, points); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, points); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}

// Start runs the startup warm for points. A positive interval hands off to
// WarmPeriodic in the background, whose first pass is the startup warm;
// otherwise a single pass bounded by timeout runs before Start returns.
func (w *CacheWarmer) Start(ctx context.Context, points []models.Coordinate, interval, timeout time.Duration) {
	if len(points) == 0 {
		return
	}
	if interval > 0 {
		go func() {
			if err := w.WarmPeriodic(ctx, points, interval); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := w.Warm(ctx, points); err != nil {
		w.logger.Warn("cache warming failed", zap.Error(err))
	}
}
