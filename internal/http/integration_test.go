//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	testhelpers "github.com/kjstillabower/hazard-risk-service/internal/testhelpers"
	"github.com/kjstillabower/hazard-risk-service/internal/traffic"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

type integrationStack struct {
	router    http.Handler
	cache     cache.Cache
	upstreams *testhelpers.Upstreams
}

// setupIntegrationStack wires real clients, service, handler and router over
// fake upstreams. limiter may be nil.
func setupIntegrationStack(t *testing.T, limiter *rate.Limiter) *integrationStack {
	t.Helper()
	traffic.Reset()
	t.Cleanup(traffic.Reset)

	cfg := testhelpers.GetIntegrationConfig(t)
	upstreams := testhelpers.NewUpstreams(t)
	svc, cacheSvc, cleanup := testhelpers.SetupIntegrationService(t, cfg, upstreams)
	t.Cleanup(cleanup)

	healthCfg := &HealthConfig{
		DegradedWindow:       time.Minute,
		DegradedErrorPct:     50,
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 80,
	}
	if limiter != nil {
		healthCfg.RateLimitRPS = int(limiter.Limit())
	}
	handler := NewHandler(svc, healthCfg, testLogger)
	return &integrationStack{
		router:    NewRouter(handler, testLogger, limiter, 5*time.Second),
		cache:     cacheSvc,
		upstreams: upstreams,
	}
}

func (s *integrationStack) do(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func decodeAssessment(t *testing.T, w *httptest.ResponseRecorder) assessmentResponse {
	t.Helper()
	var resp assessmentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

// TestIntegration_GetAssessment_FullCycle verifies a cache-miss cycle through
// all four sources and the scoring of each forecast day.
func TestIntegration_GetAssessment_FullCycle(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	w := s.do(t, "/assessment?lat=41.0082&lng=28.9784")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeAssessment(t, w)
	a := resp.Assessment

	if a.Status != models.StatusOK {
		t.Errorf("status = %q, want ok (errors: %+v)", a.Status, a.Errors)
	}
	if a.PlaceName != "Fatih, Istanbul, Türkiye" {
		t.Errorf("placeName = %q", a.PlaceName)
	}
	if !a.Elevation.Present || a.Elevation.Meters != 50 {
		t.Errorf("elevation = %+v, want present 50", a.Elevation)
	}
	want := []models.HazardAssessment{
		{Date: "2024-06-01", RainAmountMM: 5, Flood: 1, HeavyRain: 1, Tsunami: 2, Landslide: 1},
		{Date: "2024-06-02", RainAmountMM: 25, Flood: 2, HeavyRain: 3, Tsunami: 2, Landslide: 1},
		{Date: "2024-06-03", RainAmountMM: 60, Flood: 3, HeavyRain: 3, Tsunami: 2, Landslide: 1},
	}
	if len(a.Days) != len(want) {
		t.Fatalf("days = %+v, want %d entries", a.Days, len(want))
	}
	for i := range want {
		if a.Days[i] != want[i] {
			t.Errorf("days[%d] = %+v, want %+v", i, a.Days[i], want[i])
		}
	}
	if resp.Report.SeismicMessage != "No recent earthquakes found within 100 km." {
		t.Errorf("report.seismicMessage = %q", resp.Report.SeismicMessage)
	}
	if len(resp.Report.Chart.Datasets) != 4 || len(resp.Report.Chart.Labels) != 3 {
		t.Errorf("report.chart = %+v", resp.Report.Chart)
	}
}

// TestIntegration_GetAssessment_CacheHit verifies a second request is served
// without calling any upstream.
func TestIntegration_GetAssessment_CacheHit(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	first := s.do(t, "/assessment?lat=41.0082&lng=28.9784")
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	hits := s.upstreams.Weather.Hits()

	second := s.do(t, "/assessment?lat=41.0082&lng=28.9784")
	if second.Code != http.StatusOK {
		t.Fatalf("second request status = %d", second.Code)
	}
	if got := s.upstreams.Weather.Hits(); got != hits {
		t.Errorf("weather hits = %d after cached request, want %d", got, hits)
	}
	a1 := decodeAssessment(t, first).Assessment
	a2 := decodeAssessment(t, second).Assessment
	if !a1.GeneratedAt.Equal(a2.GeneratedAt) {
		t.Errorf("generatedAt differs: %v vs %v; want the cached assessment", a1.GeneratedAt, a2.GeneratedAt)
	}
}

// TestIntegration_GetAssessment_PreseededCache verifies cache-aside reads.
func TestIntegration_GetAssessment_PreseededCache(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	c := models.Coordinate{Lat: 10, Lng: 10}
	seeded := models.Assessment{
		Coordinate: c,
		PlaceName:  "Seeded",
		Forecast:   []models.DailyForecast{},
		Days:       []models.HazardAssessment{},
		Seismic:    []models.SeismicEvent{},
		Status:     models.StatusOK,
	}
	if err := s.cache.Set(context.Background(), c.Key(), seeded, time.Minute); err != nil {
		t.Fatalf("Failed to populate cache: %v", err)
	}

	w := s.do(t, "/assessment?lat=10&lng=10")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if got := decodeAssessment(t, w).Assessment.PlaceName; got != "Seeded" {
		t.Errorf("placeName = %q, want Seeded", got)
	}
	if s.upstreams.Geocode.Hits() != 0 {
		t.Errorf("geocode hits = %d, want 0", s.upstreams.Geocode.Hits())
	}
}

// TestIntegration_GetAssessment_WeatherDown verifies a failed critical source
// yields an unavailable assessment that is not cached.
func TestIntegration_GetAssessment_WeatherDown(t *testing.T) {
	s := setupIntegrationStack(t, nil)
	s.upstreams.Weather.Respond(http.StatusBadGateway, map[string]string{"error": "down"})

	w := s.do(t, "/assessment?lat=41.0105&lng=28.9802")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeAssessment(t, w)
	if resp.Assessment.Status != models.StatusUnavailable {
		t.Errorf("status = %q, want unavailable", resp.Assessment.Status)
	}
	if len(resp.Assessment.Days) != 0 {
		t.Errorf("days = %+v, want none", resp.Assessment.Days)
	}
	if resp.Report.WeatherError == "" || resp.Report.RiskError == "" {
		t.Errorf("report errors missing: %+v", resp.Report)
	}
	if resp.Report.Elevation != "Elevation: 50 meters" {
		t.Errorf("report.elevation = %q, want the elevation panel unaffected", resp.Report.Elevation)
	}

	hits := s.upstreams.Weather.Hits()
	s.do(t, "/assessment?lat=41.0105&lng=28.9802")
	if s.upstreams.Weather.Hits() == hits {
		t.Error("unavailable assessment was served from cache")
	}

	hw := s.do(t, "/health")
	if hw.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503 after weather failures", hw.Code)
	}
}

// TestIntegration_GetAssessment_ElevationDown verifies landslide is floored
// and the derived-value notice is reported.
func TestIntegration_GetAssessment_ElevationDown(t *testing.T) {
	s := setupIntegrationStack(t, nil)
	s.upstreams.Elevation.Respond(http.StatusInternalServerError, map[string]string{"error": "boom"})

	w := s.do(t, "/assessment?lat=41.0211&lng=28.9950")
	resp := decodeAssessment(t, w)
	if resp.Assessment.Status != models.StatusDegraded {
		t.Errorf("status = %q, want degraded", resp.Assessment.Status)
	}
	for _, d := range resp.Assessment.Days {
		if d.Landslide != models.RiskLow {
			t.Errorf("day %s landslide = %d, want 1", d.Date, d.Landslide)
		}
	}
	if len(resp.Report.Notices) != 1 {
		t.Errorf("report.notices = %v, want one notice", resp.Report.Notices)
	}
	if resp.Report.ElevationError == "" {
		t.Error("report.elevationError missing")
	}
}

// TestIntegration_GetAssessment_InvalidCoordinate verifies 400 before any upstream call.
func TestIntegration_GetAssessment_InvalidCoordinate(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	w := s.do(t, "/assessment?lat=100&lng=0")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if s.upstreams.Weather.Hits() != 0 {
		t.Errorf("weather hits = %d, want 0", s.upstreams.Weather.Hits())
	}
}

// TestIntegration_GetAssessment_Coalesced verifies concurrent requests for one
// point share a cycle.
func TestIntegration_GetAssessment_Coalesced(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	var wg sync.WaitGroup
	codes := make([]int, 10)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(t, "/assessment?lat=35.0&lng=139.0").Code
		}(i)
	}
	wg.Wait()

	for i, c := range codes {
		if c != http.StatusOK {
			t.Errorf("request %d status = %d", i, c)
		}
	}
	if hits := s.upstreams.Weather.Hits(); hits >= int64(len(codes)) {
		t.Errorf("weather hits = %d, want fewer than %d", hits, len(codes))
	}
}

func TestIntegration_GetHealth_FullStack(t *testing.T) {
	s := setupIntegrationStack(t, nil)

	w := s.do(t, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["service"] != "hazard-risk-service" {
		t.Errorf("service = %v", body["service"])
	}
}

func TestIntegration_GetMetrics_Format(t *testing.T) {
	s := setupIntegrationStack(t, nil)
	s.do(t, "/assessment?lat=41.0082&lng=28.9784")

	w := s.do(t, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "upstreamCallsTotal", "assessmentsTotal", "hazardLevelsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	s := setupIntegrationStack(t, rate.NewLimiter(1, 3))

	var limited int
	for i := 0; i < 6; i++ {
		if s.do(t, "/assessment?lat=41.0082&lng=28.9784").Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("expected some requests to be rate limited")
	}
	if s.do(t, "/health").Code == http.StatusTooManyRequests {
		t.Error("/health must not be rate limited")
	}
}

func TestIntegration_RateLimiting_Overloaded(t *testing.T) {
	s := setupIntegrationStack(t, rate.NewLimiter(1, 1))

	// threshold = 1 rps * 60s * 80% = 48 denials
	for i := 0; i < 60; i++ {
		s.do(t, "/assessment?lat=41.0082&lng=28.9784")
	}
	w := s.do(t, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "overloaded" {
		t.Errorf("status = %v, want overloaded", body["status"])
	}
}

// TestIntegration_GetAssessment_OpenWater verifies a point with no address
// is still ok and served from cache on the next request.
func TestIntegration_GetAssessment_OpenWater(t *testing.T) {
	s := setupIntegrationStack(t, nil)
	s.upstreams.Geocode.Respond(http.StatusOK, map[string]string{"error": "Unable to geocode"})

	for i := 0; i < 2; i++ {
		w := s.do(t, "/assessment?lat=12.0031&lng=96.0017")
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: Status = %d", i, w.Code)
		}
		a := decodeAssessment(t, w).Assessment
		if a.Status != models.StatusOK {
			t.Errorf("call %d: status = %q, want ok", i, a.Status)
		}
		if a.PlaceName != "Unknown" {
			t.Errorf("call %d: placeName = %q, want Unknown", i, a.PlaceName)
		}
	}
	if hits := s.upstreams.Weather.Hits(); hits != 1 {
		t.Errorf("weather hits = %d, want 1", hits)
	}
}
