// Package client fetches forecast, elevation, seismic and place-name data from
// public HTTP services. Every source shares the same retry, circuit-breaker and
// metrics behavior through httpSource.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/circuitbreaker"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
	"github.com/kjstillabower/hazard-risk-service/internal/observability"
	"github.com/kjstillabower/hazard-risk-service/internal/traffic"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRejected        = errors.New("request rejected")
	ErrNoResult        = errors.New("no result")
	ErrCircuitOpen     = errors.New("circuit open")
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// Options configures one upstream source.
type Options struct {
	URL            string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	UserAgent      string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 2 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "hazard-risk-service/1.0"
	}
	return o
}

// httpSource is the shared GET-JSON transport for every upstream source.
type httpSource struct {
	source         models.Source
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	userAgent      string
	breaker        *circuitbreaker.CircuitBreaker
}

func newHTTPSource(source models.Source, opts Options) (httpSource, error) {
	opts = opts.withDefaults()
	if _, err := url.ParseRequestURI(opts.URL); err != nil {
		return httpSource{}, fmt.Errorf("%s: invalid API URL %q: %w", source, opts.URL, err)
	}
	return httpSource{
		source:         source,
		apiURL:         opts.URL,
		timeout:        opts.Timeout,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		userAgent:      opts.UserAgent,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// SetCircuitBreaker guards subsequent calls with cb. nil disables the breaker.
func (s *httpSource) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	s.breaker = cb
}

// Source reports which upstream this client talks to.
func (s *httpSource) Source() models.Source {
	return s.source
}

// getJSON issues GET apiURL?params with retries and decodes the body into out.
// The final outcome is recorded in metrics and the traffic tracker. check,
// when non-nil, runs on the decoded body; its error (typically ErrNoResult)
// counts as a failed call.
func (s *httpSource) getJSON(ctx context.Context, params url.Values, out interface{}, check func() error) error {
	err := s.getJSONWithRetry(ctx, params, out)
	if err == nil && check != nil {
		err = check()
	}
	src := string(s.source)
	if err != nil {
		traffic.RecordError(src)
		observability.UpstreamErrorsTotal.WithLabelValues(src, string(CategorizeError(err))).Inc()
		return err
	}
	traffic.RecordSuccess(src)
	return nil
}

func (s *httpSource) getJSONWithRetry(ctx context.Context, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(string(s.source)).Inc()
			delay := s.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := s.attempt(ctx, params, out)
		if err == nil {
			return nil
		}

		lastErr = err
		if !s.isRetryable(ctx, err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (s *httpSource) attempt(ctx context.Context, params url.Values, out interface{}) error {
	if s.breaker == nil {
		return s.callAPI(ctx, params, out)
	}
	err := s.breaker.Call(ctx, func() error {
		return s.callAPI(ctx, params, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s: %w", s.source, ErrCircuitOpen)
	}
	return err
}

func (s *httpSource) callAPI(ctx context.Context, params url.Values, out interface{}) error {
	start := time.Now()
	src := string(s.source)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.buildRequest(reqCtx, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(src, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(src, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(src, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s request timeout: %w", s.source, err)
		}
		return fmt.Errorf("%s http request failed: %w", s.source, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(src, status).Inc()
	observability.UpstreamDuration.WithLabelValues(src, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return fmt.Errorf("%s: %w", s.source, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response body: %w", s.source, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", s.source, err)
	}
	return nil
}

func (s *httpSource) buildRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(s.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// isRetryable reports whether another attempt may succeed. Caller
// cancellation is never retried.
func (s *httpSource) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *httpSource) calculateBackoff(attempt int) time.Duration {
	delay := float64(s.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(s.retryMaxDelay) {
		delay = float64(s.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// formatCoord renders a coordinate component for query strings.
func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
