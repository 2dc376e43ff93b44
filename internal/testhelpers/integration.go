//go:build integration
// +build integration

package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/cache"
	"github.com/kjstillabower/hazard-risk-service/internal/client"
	"github.com/kjstillabower/hazard-risk-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
	CacheTTL      time.Duration
}

// GetIntegrationConfig loads integration test configuration from environment.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		CacheTTL:      5 * time.Minute,
	}
}

// Upstream is a fake JSON source. Status and Body may be changed between
// requests; Hits counts requests served.
type Upstream struct {
	Server *httptest.Server

	mu     sync.Mutex
	status int
	body   interface{}
	hits   atomic.Int64
}

// Respond sets the status and JSON body for subsequent requests.
func (u *Upstream) Respond(status int, body interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
	u.body = body
}

// Hits returns the number of requests served so far.
func (u *Upstream) Hits() int64 {
	return u.hits.Load()
}

func newUpstream(t *testing.T, body interface{}) *Upstream {
	t.Helper()
	u := &Upstream{status: http.StatusOK, body: body}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.mu.Lock()
		status, b := u.status, u.body
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(b)
	}))
	t.Cleanup(u.Server.Close)
	return u
}

// Upstreams are fake weather, elevation, seismic and geocode services.
type Upstreams struct {
	Weather   *Upstream
	Elevation *Upstream
	Seismic   *Upstream
	Geocode   *Upstream
}

// ForecastBody returns a WeatherAPI-shaped forecast with one day per rain amount.
func ForecastBody(rainMM ...float64) map[string]interface{} {
	days := make([]map[string]interface{}, 0, len(rainMM))
	for i, r := range rainMM {
		days = append(days, map[string]interface{}{
			"date": time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			"day": map[string]interface{}{
				"avgtemp_c":      18.5,
				"avghumidity":    80.0,
				"maxwind_kph":    22.3,
				"totalprecip_mm": r,
				"condition":      map[string]string{"text": "Moderate rain"},
			},
		})
	}
	return map[string]interface{}{"forecast": map[string]interface{}{"forecastday": days}}
}

// ElevationBody returns an Open-Elevation-shaped body for one point.
func ElevationBody(meters float64) map[string]interface{} {
	return map[string]interface{}{
		"results": []map[string]interface{}{{"latitude": 0.0, "longitude": 0.0, "elevation": meters}},
	}
}

// SeismicBody returns a USGS GeoJSON body with one event per place.
func SeismicBody(places ...string) map[string]interface{} {
	features := make([]map[string]interface{}, 0, len(places))
	for _, p := range places {
		features = append(features, map[string]interface{}{
			"properties": map[string]interface{}{"place": p, "mag": 4.2, "time": int64(1717200000000)},
		})
	}
	return map[string]interface{}{"type": "FeatureCollection", "features": features}
}

// GeocodeBody returns a Nominatim reverse body.
func GeocodeBody(name string) map[string]interface{} {
	return map[string]interface{}{"display_name": name}
}

// NewUpstreams starts four fake sources answering with a three-day forecast,
// a 50 m elevation, no earthquakes and a fixed place name.
func NewUpstreams(t *testing.T) *Upstreams {
	t.Helper()
	return &Upstreams{
		Weather:   newUpstream(t, ForecastBody(5, 25, 60)),
		Elevation: newUpstream(t, ElevationBody(50)),
		Seismic:   newUpstream(t, SeismicBody()),
		Geocode:   newUpstream(t, GeocodeBody("Fatih, Istanbul, Türkiye")),
	}
}

// SetupIntegrationClients builds real clients pointed at the fake upstreams.
// Retries are kept short so failure tests stay fast.
func SetupIntegrationClients(t *testing.T, u *Upstreams) service.Sources {
	t.Helper()
	opts := func(url string) client.Options {
		return client.Options{
			URL:            url,
			Timeout:        2 * time.Second,
			RetryAttempts:  2,
			RetryBaseDelay: 5 * time.Millisecond,
			RetryMaxDelay:  20 * time.Millisecond,
		}
	}
	weather, err := client.NewWeatherAPIClient("integration-key", opts(u.Weather.Server.URL))
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	elevation, err := client.NewOpenElevationClient(opts(u.Elevation.Server.URL))
	if err != nil {
		t.Fatalf("NewOpenElevationClient() error = %v", err)
	}
	seismic, err := client.NewUSGSClient(opts(u.Seismic.Server.URL))
	if err != nil {
		t.Fatalf("NewUSGSClient() error = %v", err)
	}
	geocoder, err := client.NewNominatimClient(opts(u.Geocode.Server.URL))
	if err != nil {
		t.Fatalf("NewNominatimClient() error = %v", err)
	}
	return service.Sources{Weather: weather, Elevation: elevation, Seismic: seismic, Geocoder: geocoder}
}

// SetupIntegrationService creates a fully wired service over the fake
// upstreams. Returns the service, its cache and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, u *Upstreams) (*service.AssessmentService, cache.Cache, func()) {
	t.Helper()
	var cacheSvc cache.Cache
	cleanup := func() {}

	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			if mc != nil {
				_ = mc.Close()
			}
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache()
	}

	svc := service.NewAssessmentService(SetupIntegrationClients(t, u), cacheSvc, cfg.CacheTTL, 10*time.Second, nil)
	return svc, cacheSvc, cleanup
}
