package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/validation"
)

// Default upstream endpoints.
const (
	DefaultWeatherAPIURL   = "https://api.weatherapi.com/v1/forecast.json"
	DefaultElevationAPIURL = "https://api.open-elevation.com/api/v1/lookup"
	DefaultSeismicAPIURL   = "https://earthquake.usgs.gov/fdsnws/event/1/query"
	DefaultGeocodeAPIURL   = "https://nominatim.openstreetmap.org/reverse"
)

// SourceConfig is the endpoint and per-attempt timeout of one upstream.
type SourceConfig struct {
	URL     string
	Timeout time.Duration
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey string
	Weather       SourceConfig
	Elevation     SourceConfig
	Seismic       SourceConfig
	Geocode       SourceConfig

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CoalesceTimeout time.Duration
	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration

	WarmInterval  time.Duration
	TrackedPoints []models.Coordinate
}

type sourceFile struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI   sourceFile `yaml:"weather_api"`
	ElevationAPI sourceFile `yaml:"elevation_api"`
	SeismicAPI   sourceFile `yaml:"seismic_api"`
	GeocodeAPI   sourceFile `yaml:"geocode_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CoalesceTimeout  string `yaml:"coalesce_timeout"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`
	} `yaml:"health"`

	Warming struct {
		Interval      string `yaml:"interval"`
		TrackedPoints []struct {
			Lat float64 `yaml:"lat"`
			Lng float64 `yaml:"lng"`
		} `yaml:"tracked_points"`
	} `yaml:"warming"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are read with envconfig after the YAML file and take precedence.
type envOverrides struct {
	WeatherAPIKey  string `envconfig:"WEATHER_API_KEY"`
	CacheBackend   string `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs string `envconfig:"MEMCACHED_ADDRS"`
	Port           string `envconfig:"PORT"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev), env
// overrides and config/secrets.yaml. The API key comes from WEATHER_API_KEY or
// the secrets file. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("read env overrides: %w", err)
	}

	cfg := fromFile(fc)
	applyOverrides(cfg, ov)

	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.Weather = sourceFromFile(fc.WeatherAPI, DefaultWeatherAPIURL, 2*time.Second)
	cfg.Elevation = sourceFromFile(fc.ElevationAPI, DefaultElevationAPIURL, 3*time.Second)
	cfg.Seismic = sourceFromFile(fc.SeismicAPI, DefaultSeismicAPIURL, 3*time.Second)
	cfg.Geocode = sourceFromFile(fc.GeocodeAPI, DefaultGeocodeAPIURL, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 15*time.Second)
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Health.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 50)
	cfg.DegradedRetryInitial = parseDuration(fc.Health.DegradedRetryInitial, time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Health.DegradedRetryMax, 13*time.Minute)

	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)
	for _, p := range fc.Warming.TrackedPoints {
		cfg.TrackedPoints = append(cfg.TrackedPoints, models.Coordinate{Lat: p.Lat, Lng: p.Lng})
	}
	return cfg
}

func sourceFromFile(sf sourceFile, defaultURL string, defaultTimeout time.Duration) SourceConfig {
	sc := SourceConfig{
		URL:     strings.TrimSpace(sf.URL),
		Timeout: parseDurationOrZero(sf.Timeout, defaultTimeout),
	}
	if sc.URL == "" {
		sc.URL = defaultURL
	}
	return sc
}

func applyOverrides(cfg *Config, ov envOverrides) {
	cfg.WeatherAPIKey = strings.TrimSpace(ov.WeatherAPIKey)
	if v := strings.TrimSpace(strings.ToLower(ov.CacheBackend)); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(ov.MemcachedAddrs); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(ov.Port); v != "" {
		cfg.ServerPort = v
	}
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks source timeouts are positive, the cache backend is known and
// tracked points are valid coordinates. RequestTimeout is raised above the
// slowest source timeout when needed.
func validate(cfg *Config) error {
	slowest := time.Duration(0)
	for name, sc := range map[string]SourceConfig{
		"weather_api":   cfg.Weather,
		"elevation_api": cfg.Elevation,
		"seismic_api":   cfg.Seismic,
		"geocode_api":   cfg.Geocode,
	} {
		if sc.Timeout <= 0 {
			return fmt.Errorf("%s.timeout must be positive", name)
		}
		if sc.Timeout > slowest {
			slowest = sc.Timeout
		}
	}
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for i, p := range cfg.TrackedPoints {
		if err := validation.ValidateCoordinate(p); err != nil {
			return fmt.Errorf("warming.tracked_points[%d]: %w", i, err)
		}
	}
	return nil
}
