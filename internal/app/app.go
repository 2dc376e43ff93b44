// Package app builds the upstream clients, breakers and cache from config.
// It is shared by the HTTP service and the assess command.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/circuitbreaker"
	"github.com/kjstillabower/hazard-risk-service/internal/client"
	"github.com/kjstillabower/hazard-risk-service/internal/config"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/service"
)

// Upstreams are the wired clients plus the breaker guarding each one.
type Upstreams struct {
	Sources  service.Sources
	Weather  *client.WeatherAPIClient
	Breakers map[models.Source]*circuitbreaker.CircuitBreaker
}

type breakable interface {
	SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker)
	Source() models.Source
}

// NewUpstreams builds one client per source, each behind its own breaker.
// Breaker transitions are logged and exported as metrics.
func NewUpstreams(cfg *config.Config, logger *zap.Logger) (*Upstreams, error) {
	opts := func(sc config.SourceConfig) client.Options {
		return client.Options{
			URL:            sc.URL,
			Timeout:        sc.Timeout,
			RetryAttempts:  cfg.RetryAttempts,
			RetryBaseDelay: cfg.RetryBaseDelay,
			RetryMaxDelay:  cfg.RetryMaxDelay,
		}
	}

	weather, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, opts(cfg.Weather))
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	elevation, err := client.NewOpenElevationClient(opts(cfg.Elevation))
	if err != nil {
		return nil, fmt.Errorf("elevation client: %w", err)
	}
	seismic, err := client.NewUSGSClient(opts(cfg.Seismic))
	if err != nil {
		return nil, fmt.Errorf("seismic client: %w", err)
	}
	geocoder, err := client.NewNominatimClient(opts(cfg.Geocode))
	if err != nil {
		return nil, fmt.Errorf("geocode client: %w", err)
	}

	u := &Upstreams{
		Sources:  service.Sources{Weather: weather, Elevation: elevation, Seismic: seismic, Geocoder: geocoder},
		Weather:  weather,
		Breakers: make(map[models.Source]*circuitbreaker.CircuitBreaker, 4),
	}
	for _, c := range []breakable{weather, elevation, seismic, geocoder} {
		src := c.Source()
		cb := newBreaker(cfg, src, logger)
		c.SetCircuitBreaker(cb)
		u.Breakers[src] = cb
	}
	logger.Info("circuit breakers enabled",
		zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
		zap.Duration("timeout", cfg.BreakerTimeout))
	return u, nil
}

func newBreaker(cfg *config.Config, src models.Source, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	label := string(src)
	observability.CircuitBreakerState.WithLabelValues(label).Set(float64(circuitbreaker.StateClosed))
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        label,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(label, from.String(), to.String()).Inc()
			observability.CircuitBreakerState.WithLabelValues(label).Set(float64(to))
			logger.Warn("circuit breaker transition",
				zap.String("source", label),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// NewCache returns the configured cache. The memcached handle is also returned
// (nil for in_memory) so callers can ping and close it.
func NewCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached cache: %w", err)
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, nil
	}
}
