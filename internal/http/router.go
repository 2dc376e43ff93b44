package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/hazard-risk-service/internal/observability"
)

// NewRouter wires the public routes. Rate limiting and the request timeout
// apply to /assessment only; /health and /metrics stay reachable under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	assessRouter := router.PathPrefix("/assessment").Subrouter()
	assessRouter.Use(RateLimitMiddleware(limiter))
	if requestTimeout > 0 {
		assessRouter.Use(TimeoutMiddleware(requestTimeout))
	}
	assessRouter.HandleFunc("", h.GetAssessment).Methods(http.MethodGet)
	return router
}
