// Package httpretry provides an HTTP client with rate-limit-aware retry
// logic for resilient external API calls. Ad platforms apply per-app rate
// limits shared across all callers, so backoff grows linearly with the
// attempt number instead of hammering the limit again.
package httpretry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

// ErrRateLimited is returned when every attempt was rejected by the
// platform's rate limiter.
var ErrRateLimited = errors.New("httpretry: rate limited after exhausting retries")

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitDetector reports whether a response signals rate limiting.
// The body is the fully-read response body; implementations must not
// assume it is valid JSON. HTTP 429 is always treated as rate limiting
// regardless of the detector.
type RateLimitDetector func(statusCode int, body []byte) bool

// RetryClient wraps an HTTPDoer with bounded, rate-limit-aware retries.
//
// Rate-limited responses are retried with linear backoff
// (baseDelay * attempt). Transport errors are retried after a fixed
// delay. Any other status code, including 4xx/5xx, is returned to the
// caller unretried so callers can distinguish "this subject cannot be
// processed" from "the platform is unavailable".
type RetryClient struct {
	client      HTTPDoer
	maxAttempts int
	baseDelay   time.Duration
	retryDelay  time.Duration
	detector    RateLimitDetector
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithRateLimitDetector installs a platform-specific rate-limit check,
// e.g. for APIs that bury "request limit reached" inside a 400 body.
func WithRateLimitDetector(d RateLimitDetector) Option {
	return func(rc *RetryClient) { rc.detector = d }
}

// WithTransportRetryDelay overrides the fixed delay applied between
// retries of network-level failures.
func WithTransportRetryDelay(d time.Duration) Option {
	return func(rc *RetryClient) { rc.retryDelay = d }
}

// NewRetryClient creates a RetryClient wrapping the given HTTPDoer.
// If client is nil, a default http.Client with a 30s timeout is used.
// maxAttempts is the total number of attempts (default 3); baseDelay is
// the unit of linear backoff between rate-limited attempts (default 60s).
func NewRetryClient(client HTTPDoer, maxAttempts int, baseDelay time.Duration, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 60 * time.Second
	}
	rc := &RetryClient{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		retryDelay:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do executes the HTTP request with retry logic.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		// Reset request body for retried attempts
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
			}
			req.Body = body
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			logger.Warn("request failed, retrying",
				"method", req.Method,
				"url", truncateURL(req.URL.String()),
				"attempt", attempt,
				"error", err.Error())
			if attempt < rc.maxAttempts {
				if err := rc.sleep(req, rc.retryDelay); err != nil {
					return nil, err
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("httpretry: reading response body: %w", readErr)
			continue
		}

		logger.Debug("request completed",
			"method", req.Method,
			"url", truncateURL(req.URL.String()),
			"status", resp.StatusCode,
			"attempt", attempt)

		if !rc.isRateLimited(resp.StatusCode, body) {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		}

		lastErr = ErrRateLimited
		if attempt < rc.maxAttempts {
			delay := rc.baseDelay * time.Duration(attempt)
			logger.Warn("rate limited, backing off",
				"method", req.Method,
				"url", truncateURL(req.URL.String()),
				"status", resp.StatusCode,
				"attempt", attempt,
				"delay", delay.String())
			if err := rc.sleep(req, delay); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrRateLimited
	}
	return nil, lastErr
}

func (rc *RetryClient) isRateLimited(statusCode int, body []byte) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if rc.detector != nil {
		return rc.detector(statusCode, body)
	}
	return false
}

// sleep waits for the given duration or until the request context is done.
func (rc *RetryClient) sleep(req *http.Request, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

// truncateURL keeps log lines readable; query strings can carry very
// large encoded payloads (and credentials, which the logger redacts).
func truncateURL(u string) string {
	const max = 120
	if len(u) <= max {
		return u
	}
	return u[:max] + "..."
}
