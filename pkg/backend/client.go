// Package backend is the HTTP client for the pharmacogenomic analysis service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pharmaguard-wizard/internal/domain"
)

// DefaultBaseURL is used when no base URL is configured
const DefaultBaseURL = "http://localhost:8000"

// ErrBackendUnavailable is returned while the circuit breaker is open
var ErrBackendUnavailable = errors.New("analysis backend unavailable (circuit breaker open)")

// Client talks to the analysis backend. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for breaker state changes and request logs
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a backend client from configuration
func NewClient(config domain.BackendConfig, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateLimit
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(limit, burst),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(config.Breaker, c.logger)
	return c
}

// BaseURL returns the normalized backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BreakerState reports the circuit breaker state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func newBreaker(config domain.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	maxRequests := config.MaxRequests
	if maxRequests == 0 {
		maxRequests = 3
	}
	interval := config.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	minRequests := config.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := config.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analysis-backend",
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	})
}

// isSuccessful keeps client-side errors and cancellations from tripping the breaker
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	StatusCode int
	Detail     string
}

// Error returns the backend's detail when it sent one, otherwise the status
func (e *StatusError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

func newStatusError(statusCode int, body []byte) *StatusError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	statusErr := &StatusError{StatusCode: statusCode}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return statusErr
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		statusErr.Detail = detail
	}
	return statusErr
}

// execute runs one request through the rate limiter and circuit breaker and
// returns the body of a 2xx response
func (c *Client) execute(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		c.logger.WithFields(logrus.Fields{
			"method":   req.Method,
			"path":     req.URL.Path,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		}).Debug("Backend request completed")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newStatusError(resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrBackendUnavailable
		}
		return nil, err
	}
	return result.([]byte), nil
}
