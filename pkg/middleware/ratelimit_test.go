package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sendFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimit_WithinBurst_Passes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 10, 10, nil, discardLogger())(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, sendFrom(h, "192.168.1.1:12345").Code, "request %d", i+1)
	}
}

func TestRateLimit_ExceedingBurst_Returns429(t *testing.T) {
	store := newVisitorStore(1, 2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return now }
	h := rateLimit(store, NewIPResolver(nil, discardLogger()), discardLogger())(okHandler())

	assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.1:1").Code)

	rr := sendFrom(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.1:1").Code, "bucket refills over time")
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	store := newVisitorStore(1, 1, time.Minute)
	h := rateLimit(store, NewIPResolver(nil, discardLogger()), discardLogger())(okHandler())

	assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, sendFrom(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.2:1").Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(context.Background(), 0, 0, nil, discardLogger())(okHandler())

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, sendFrom(h, "10.0.0.1:1").Code)
	}
}

func TestVisitorStore_CleanupEvictsIdle(t *testing.T) {
	store := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return now }

	store.allow("10.0.0.1")
	now = now.Add(30 * time.Second)
	store.allow("10.0.0.2")
	assert.Equal(t, 2, store.len())

	now = now.Add(45 * time.Second)
	store.cleanup()
	assert.Equal(t, 1, store.len(), "only the visitor idle past the ttl is evicted")
}

func TestRateLimit_SpoofedForwardedForSharesPeerBucket(t *testing.T) {
	store := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return now }
	h := rateLimit(store, NewIPResolver([]string{"10.0.0.0/8"}, discardLogger()), discardLogger())(okHandler())

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i+1))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 1, allowed, "forwarding headers from an untrusted peer must not mint new buckets")
	assert.Equal(t, 1, store.len())
}

func TestRateLimit_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	store := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return now }
	h := rateLimit(store, NewIPResolver([]string{"10.0.0.0/8"}, discardLogger()), discardLogger())(okHandler())

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:4000"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"), "distinct clients behind the proxy get their own buckets")
	assert.Equal(t, http.StatusTooManyRequests, send("6.6.6.6, 198.51.100.2"), "a prepended hop does not change the key")
}

func TestIPResolver_ClientIP(t *testing.T) {
	resolver := NewIPResolver([]string{"10.0.0.0/8", "not-a-cidr", "192.168.0.0/16"}, discardLogger())

	tests := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{name: "remote addr", remote: "203.0.113.1:5555", want: "203.0.113.1"},
		{name: "untrusted peer ignores forwarded", xff: "198.51.100.7", remote: "203.0.113.1:5555", want: "203.0.113.1"},
		{name: "untrusted peer ignores real ip", xri: "198.51.100.9", remote: "203.0.113.1:5555", want: "203.0.113.1"},
		{name: "trusted peer single hop", xff: "198.51.100.7", remote: "10.1.1.1:5555", want: "198.51.100.7"},
		{name: "rightmost untrusted hop wins", xff: "6.6.6.6, 198.51.100.7, 192.168.1.1", remote: "10.1.1.1:5555", want: "198.51.100.7"},
		{name: "junk hop stops the walk", xff: "198.51.100.7, unknown, 192.168.1.1", remote: "10.1.1.1:5555", want: "192.168.1.1"},
		{name: "all hops trusted", xff: "10.2.2.2, 192.168.1.1", remote: "10.1.1.1:5555", want: "10.2.2.2"},
		{name: "trusted peer real ip", xri: "198.51.100.9", remote: "10.1.1.1:5555", want: "198.51.100.9"},
		{name: "trusted peer no headers", remote: "10.1.1.1:5555", want: "10.1.1.1"},
		{name: "no port", remote: "203.0.113.1", want: "203.0.113.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, resolver.ClientIP(req))
		})
	}
}

func TestIPResolver_NoTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	assert.Equal(t, "10.1.1.1", NewIPResolver(nil, discardLogger()).ClientIP(req))
}
