package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
	"github.com/luxuryfashion/storefront/pkg/httputil"
)

// visitor tracks a token bucket per client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore holds per-IP buckets and evicts idle ones.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	nowFunc  func() time.Time
}

func newVisitorStore(rps float64, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// allow reports whether ip may make a request now.
func (s *visitorStore) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *visitorStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *visitorStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, ip)
		}
	}
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit returns middleware enforcing a per-client token bucket of rps
// requests per second with the given burst. Clients are keyed by resolver; a
// nil resolver keys on the direct peer address. Rejected requests get 429
// RATE_LIMITED. Idle buckets are evicted until ctx is done. rps <= 0 disables
// the limit.
func RateLimit(ctx context.Context, rps float64, burst int, resolver *IPResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	if resolver == nil {
		resolver = NewIPResolver(nil, logger)
	}

	store := newVisitorStore(rps, burst, 3*time.Minute)
	go store.cleanupLoop(ctx)

	return rateLimit(store, resolver, logger)
}

func rateLimit(store *visitorStore, resolver *IPResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolver.ClientIP(r)
			if !store.allow(ip) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, r, apperrors.TooManyRequests("RATE_LIMITED", "too many requests"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPResolver derives the client address of a request. X-Forwarded-For and
// X-Real-IP are client-controlled, so they are read only when the direct peer
// is one of the trusted proxies.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver creates a resolver trusting forwarding headers from peers in
// trustedCIDRs. Invalid CIDRs are logged and skipped.
func NewIPResolver(trustedCIDRs []string, logger *slog.Logger) *IPResolver {
	return &IPResolver{trusted: parseCIDRs(trustedCIDRs, "invalid trusted proxy CIDR, skipping", logger)}
}

// ClientIP returns the peer address from RemoteAddr. When the peer is a
// trusted proxy it walks X-Forwarded-For from the right and returns the first
// hop outside the trusted ranges, falling back to X-Real-IP when there is no
// forwarded chain.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !res.trustsPeer(r) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			client = ip.String()
			if !containsIP(res.trusted, ip) {
				break
			}
		}
		return client
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

func (res *IPResolver) trustsPeer(r *http.Request) bool {
	return containsIP(res.trusted, net.ParseIP(remoteHost(r)))
}

// remoteHost returns the host part of RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseCIDRs(cidrs []string, msg string, logger *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			logger.Warn(msg,
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func containsIP(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
