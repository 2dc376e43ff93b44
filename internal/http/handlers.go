package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/hazard-risk-service/internal/circuitbreaker"
	"github.com/kjstillabower/hazard-risk-service/internal/lifecycle"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/report"
	"github.com/kjstillabower/hazard-risk-service/internal/traffic"
	"github.com/kjstillabower/hazard-risk-service/internal/validation"
)

// Sources reported under /health checks, in display order.
var healthSources = []models.Source{
	models.SourceWeather,
	models.SourceElevation,
	models.SourceSeismic,
	models.SourceGeocode,
}

// Assessor produces an assessment for one coordinate.
type Assessor interface {
	GetAssessment(ctx context.Context, c models.Coordinate) (models.Assessment, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// DegradedWindow and DegradedErrorPct drive the degraded state from the
	// weather error rate. Either zero disables it.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Overload: denials in OverloadWindow above OverloadThresholdPct of
	// RateLimitRPS*window. Zero RateLimitRPS disables it.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	// Breakers, when set, mark a source unhealthy while its breaker is open.
	Breakers map[models.Source]*circuitbreaker.CircuitBreaker
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// OnDegraded, when set, is called each time /health reports degraded.
	// It must not block.
	OnDegraded func()
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	assessor         Assessor
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(assessor Assessor, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		assessor:     assessor,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// assessmentResponse is the body of a successful GET /assessment.
type assessmentResponse struct {
	Assessment models.Assessment `json:"assessment"`
	Report     report.Report     `json:"report"`
}

// GetAssessment handles GET /assessment?lat=..&lng=..
// Every completed cycle is a 200, including degraded and unavailable ones.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coord, err := validation.ParseCoordinate(q.Get("lat"), q.Get("lng"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}

	a, err := h.assessor.GetAssessment(r.Context(), coord)
	if err != nil {
		if isValidationError(err) {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessmentResponse{Assessment: a, Report: report.Build(a)})
}

func isValidationError(err error) bool {
	return errors.Is(err, validation.ErrCoordinateMissing) ||
		errors.Is(err, validation.ErrCoordinateInvalid) ||
		errors.Is(err, validation.ErrCoordinateOutOfRange)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	if result.status == "degraded" && h.healthConfig != nil && h.healthConfig.OnDegraded != nil {
		h.healthConfig.OnDegraded()
	}

	checks := make(map[string]string, len(healthSources)+1)
	for _, src := range healthSources {
		checks[string(src)] = h.sourceCheck(src)
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	body := map[string]interface{}{
		"status":    result.status,
		"service":   "hazard-risk-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if since := lifecycle.ShuttingDownSince(); !since.IsZero() {
		body["drainingSince"] = since.Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.errorRateBreached(models.SourceWeather) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "weather_error_rate_breach"}
	}
	if h.breakerOpen(models.SourceWeather) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "weather_circuit_open"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// sourceCheck reports one source as healthy or unhealthy.
func (h *Handler) sourceCheck(src models.Source) string {
	if h.errorRateBreached(src) || h.breakerOpen(src) {
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) errorRateBreached(src models.Source) bool {
	if h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 || h.healthConfig.DegradedErrorPct <= 0 {
		return false
	}
	errs, total := traffic.ErrorRate(string(src), h.healthConfig.DegradedWindow)
	if total == 0 {
		return false
	}
	pct := float64(errs) * 100 / float64(total)
	return pct >= float64(h.healthConfig.DegradedErrorPct)
}

func (h *Handler) breakerOpen(src models.Source) bool {
	if h.healthConfig == nil || h.healthConfig.Breakers == nil {
		return false
	}
	cb := h.healthConfig.Breakers[src]
	return cb != nil && cb.State() == circuitbreaker.StateOpen
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with code, message and the
// request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes 503 for a cycle that could not complete.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to complete hazard assessment")
	observability.LoggerFromContext(r.Context()).Debug("assessment error", zap.Error(err))
}
