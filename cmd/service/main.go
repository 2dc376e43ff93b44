package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/hazard-risk-service/internal/app"
	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/config"
	"github.com/kjstillabower/hazard-risk-service/internal/degraded"
	"github.com/kjstillabower/hazard-risk-service/internal/geo"
	httphandler "github.com/kjstillabower/hazard-risk-service/internal/http"
	"github.com/kjstillabower/hazard-risk-service/internal/lifecycle"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/service"
)

const inFlightCheckInterval = 50 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	for _, r := range geo.WaterBodies() {
		if r.Inverted() {
			logger.Warn("water body region has inverted bounds and never matches",
				zap.String("region", r.Name))
		}
	}

	upstreams, err := app.NewUpstreams(cfg, logger)
	if err != nil {
		logger.Fatal("upstreams", zap.Error(err))
	}
	cacheSvc, memcached, err := app.NewCache(cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	assessments := service.NewAssessmentService(upstreams.Sources, cacheSvc, cfg.CacheTTL, cfg.CoalesceTimeout, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recovery := degraded.NewRecovery(string(models.SourceWeather), upstreams.Weather.ValidateAPIKey,
		cfg.DegradedRetryInitial, cfg.DegradedRetryMax, logger, nil)
	recovery.Start(ctx)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		Breakers:             upstreams.Breakers,
		OnDegraded:           recovery.Notify,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	observability.RegisterSourceGauges(cfg.DegradedWindow, []string{
		string(models.SourceWeather), string(models.SourceElevation),
		string(models.SourceSeismic), string(models.SourceGeocode),
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(assessments, healthConfig, logger)

	cache.NewCacheWarmer(assessments, logger).Start(ctx, cfg.TrackedPoints, cfg.WarmInterval, 30*time.Second)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
