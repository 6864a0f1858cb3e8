package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config holds outbound HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns defaults for calls to identity providers.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 20,
	}
}

// New builds an *http.Client whose transport retries idempotent requests and
// trips a circuit breaker when the upstream keeps failing.
func New(cfg Config, cb CircuitBreakerConfig, logger *slog.Logger) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: NewBreakerTransport(NewRetryTransport(base, cfg), cb, logger),
		Timeout:   cfg.Timeout,
	}
}

// RetryTransport retries idempotent requests on network errors and on 5xx
// responses other than 501. Requests with a body are never retried: an OAuth
// authorization code must not be redeemed twice.
type RetryTransport struct {
	next http.RoundTripper
	cfg  Config
}

// NewRetryTransport wraps next.
func NewRetryTransport(next http.RoundTripper, cfg Config) *RetryTransport {
	return &RetryTransport{next: next, cfg: cfg}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isIdempotent(req) {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req)
		last := attempt >= t.cfg.MaxRetries

		switch {
		case err != nil:
			if last || !isRetryableError(err) {
				return nil, err
			}
		case resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented && !last:
			_ = resp.Body.Close()
		default:
			return resp, nil
		}

		select {
		case <-time.After(t.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *RetryTransport) backoff(attempt int) time.Duration {
	wait := t.cfg.RetryWaitMin << attempt
	if wait > t.cfg.RetryWaitMax || wait <= 0 {
		wait = t.cfg.RetryWaitMax
	}
	return addJitter(wait)
}

func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return req.Body == nil || req.Body == http.NoBody
	}
	return false
}

// addJitter spreads d by ±25%.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(float64(d) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
	return d + jitter
}

// isRetryableError reports transient network failures. Cancellation by the
// caller is never retried.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
