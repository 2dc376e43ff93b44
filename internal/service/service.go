// Package service runs assessment cycles: it fans out to every source,
// joins the results, scores each forecast day and caches clean results.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/client"
	"github.com/kjstillabower/hazard-risk-service/internal/hazard"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/validation"
)

// UnknownPlace is the place name used when reverse geocoding fails.
const UnknownPlace = "Unknown"

// Sources bundles the upstream clients one cycle draws on.
type Sources struct {
	Weather   client.WeatherClient
	Elevation client.ElevationClient
	Seismic   client.SeismicClient
	Geocoder  client.Geocoder
}

// AssessmentService orchestrates assessment cycles using cache-aside with
// coalesced upstream fan-out.
type AssessmentService struct {
	sources   Sources
	cache     cache.Cache
	ttl       time.Duration
	coalescer *requestCoalescer
	clock     clockwork.Clock
}

// NewAssessmentService creates an AssessmentService. ttl is the cache lifetime
// of an ok assessment. coalesceTimeout bounds a shared cycle (0 = unbounded).
func NewAssessmentService(sources Sources, c cache.Cache, ttl, coalesceTimeout time.Duration, clock clockwork.Clock) *AssessmentService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AssessmentService{
		sources:   sources,
		cache:     c,
		ttl:       ttl,
		coalescer: newRequestCoalescer(coalesceTimeout),
		clock:     clock,
	}
}

// GetAssessment returns the cached assessment for c when present, otherwise
// runs one cycle shared with any concurrent caller for the same point. Only
// ok assessments are written back to the cache.
func (s *AssessmentService) GetAssessment(ctx context.Context, c models.Coordinate) (models.Assessment, error) {
	if err := validation.ValidateCoordinate(c); err != nil {
		return models.Assessment{}, fmt.Errorf("assess: %w", err)
	}
	key := c.Key()
	logger := observability.LoggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("coordinate", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.Inc()
		logger.Debug("assessment served", zap.String("coordinate", key), zap.Bool("cached", true))
		return cached, nil
	}
	observability.CacheMissesTotal.Inc()

	a, shared, err := s.coalescer.GetOrDo(ctx, key, func(runCtx context.Context) (models.Assessment, error) {
		a, err := s.Run(runCtx, c)
		if err != nil {
			return a, err
		}
		if a.Status == models.StatusOK {
			if setErr := s.cache.Set(runCtx, key, a, s.ttl); setErr != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
				logger.Warn("cache set failed", zap.String("coordinate", key), zap.Error(setErr))
			}
		}
		return a, nil
	})
	if err != nil {
		return models.Assessment{}, fmt.Errorf("assess %s: %w", key, err)
	}
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	logger.Debug("assessment served",
		zap.String("coordinate", key),
		zap.Bool("cached", false),
		zap.Bool("coalesced", shared),
		zap.String("status", string(a.Status)),
	)
	return a, nil
}

// Run executes one uncached cycle for c. The four sources are fetched
// concurrently and joined before any day is scored, so elevation is always
// resolved (value or unknown) first. Source failures are recorded in the
// returned Assessment and never escape as errors; the error is non-nil only
// for an invalid coordinate or a context already done before fan-out.
func (s *AssessmentService) Run(ctx context.Context, c models.Coordinate) (models.Assessment, error) {
	if err := validation.ValidateCoordinate(c); err != nil {
		return models.Assessment{}, fmt.Errorf("assess: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Assessment{}, err
	}
	start := s.clock.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("coordinate", c.Key()))

	var (
		forecast   []models.DailyForecast
		elev       = models.UnknownElevation()
		events     []models.SeismicEvent
		place      string
		weatherErr error
		elevErr    error
		seismicErr error
		geoErr     error
	)

	var g errgroup.Group
	g.Go(contain(models.SourceWeather, &weatherErr, func() (err error) {
		forecast, err = s.sources.Weather.GetForecast(ctx, c, client.ForecastDays)
		return err
	}))
	g.Go(contain(models.SourceElevation, &elevErr, func() error {
		sample, err := s.sources.Elevation.GetElevation(ctx, c)
		if err == nil {
			elev = sample
		}
		return err
	}))
	g.Go(contain(models.SourceSeismic, &seismicErr, func() (err error) {
		events, err = s.sources.Seismic.GetEvents(ctx, c, client.SeismicRadiusKm)
		return err
	}))
	g.Go(contain(models.SourceGeocode, &geoErr, func() (err error) {
		place, err = s.sources.Geocoder.ReverseGeocode(ctx, c)
		return err
	}))
	_ = g.Wait()

	a := models.Assessment{
		Coordinate: c,
		PlaceName:  place,
		Forecast:   forecast,
		Elevation:  elev,
		Seismic:    events,
		Errors:     []models.SourceError{},
	}

	if weatherErr != nil {
		a.Forecast = []models.DailyForecast{}
		a.Errors = append(a.Errors, sourceUnavailable(models.SourceWeather, weatherErr, true))
	}
	if a.Forecast == nil {
		a.Forecast = []models.DailyForecast{}
	}
	a.Days = hazard.ScoreDays(a.Forecast, a.Elevation, c)

	if elevErr != nil {
		a.Elevation = models.UnknownElevation()
		a.Errors = append(a.Errors, sourceUnavailable(models.SourceElevation, elevErr, false))
	}
	if !a.Elevation.Present && len(a.Days) > 0 {
		a.Errors = append(a.Errors, models.SourceError{
			Source:  models.SourceElevation,
			Kind:    models.KindMissingDerivedValue,
			Message: "elevation unknown; landslide risk floored to low",
		})
	}
	if seismicErr != nil {
		a.Seismic = []models.SeismicEvent{}
		a.Errors = append(a.Errors, sourceUnavailable(models.SourceSeismic, seismicErr, false))
	}
	if a.Seismic == nil {
		a.Seismic = []models.SeismicEvent{}
	}
	if geoErr != nil || strings.TrimSpace(a.PlaceName) == "" {
		if geoErr != nil {
			e := sourceUnavailable(models.SourceGeocode, geoErr, false)
			e.Cosmetic = true
			a.Errors = append(a.Errors, e)
		}
		a.PlaceName = UnknownPlace
	}

	a.Status = statusOf(a)
	a.GeneratedAt = s.clock.Now().UTC()
	recordCycle(a)

	fields := []zap.Field{
		zap.String("status", string(a.Status)),
		zap.Int("days", len(a.Days)),
		zap.Int("seismic_events", len(a.Seismic)),
		zap.Bool("elevation_known", a.Elevation.Present),
		zap.Duration("duration", s.clock.Since(start)),
	}
	if len(a.Errors) == 0 {
		logger.Debug("assessment cycle complete", fields...)
	} else {
		for _, e := range a.Errors {
			fields = append(fields, zap.String(string(e.Source)+"_"+string(e.Kind), e.Message))
		}
		logger.Warn("assessment cycle complete with errors", fields...)
	}
	return a, nil
}

// contain runs fn, storing its error (or a recovered panic) in dst. The task
// always reports success to the group so one source cannot cancel another.
func contain(src models.Source, dst *error, fn func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				*dst = fmt.Errorf("%s: panic: %v", src, r)
			}
		}()
		*dst = fn()
		return nil
	}
}

func sourceUnavailable(src models.Source, err error, critical bool) models.SourceError {
	return models.SourceError{
		Source:   src,
		Kind:     models.KindSourceUnavailable,
		Message:  err.Error(),
		Critical: critical,
	}
}

// statusOf ignores cosmetic errors: the place name feeds no score.
func statusOf(a models.Assessment) models.Status {
	status := models.StatusOK
	for _, e := range a.Errors {
		switch {
		case e.Critical:
			return models.StatusUnavailable
		case !e.Cosmetic:
			status = models.StatusDegraded
		}
	}
	return status
}

func recordCycle(a models.Assessment) {
	observability.AssessmentsTotal.WithLabelValues(string(a.Status)).Inc()
	for _, d := range a.Days {
		observability.RecordHazardLevel("flood", int(d.Flood))
		observability.RecordHazardLevel("heavy_rain", int(d.HeavyRain))
		observability.RecordHazardLevel("tsunami", int(d.Tsunami))
		observability.RecordHazardLevel("landslide", int(d.Landslide))
	}
}
