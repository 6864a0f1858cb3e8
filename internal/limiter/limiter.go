// Package limiter counts failed login attempts in Redis.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxuryfashion/storefront/pkg/database"
)

const keyPrefix = "login:failures:"

// incrWithWindow increments the counter and starts its window on the first
// failure only, so repeated failures cannot extend a lockout indefinitely.
var incrWithWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Config holds the failure threshold and window.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

// LoginLimiter locks an email out after MaxFailures failed logins until the
// window that began with the first failure expires.
type LoginLimiter struct {
	client redis.Cmdable
	cfg    Config
}

// New creates a LoginLimiter. A MaxFailures of zero disables lockout.
func New(client redis.Cmdable, cfg Config) *LoginLimiter {
	return &LoginLimiter{client: client, cfg: cfg}
}

// key hashes the email so addresses are not stored in Redis in clear text.
func key(email string) string {
	sum := sha256.Sum256([]byte(email))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Blocked reports whether email has reached the failure threshold.
func (l *LoginLimiter) Blocked(ctx context.Context, email string) (blocked bool, err error) {
	if l.cfg.MaxFailures <= 0 {
		return false, nil
	}

	ctx, end := database.TraceCommand(ctx, "redis", "GetLoginFailures", "GET")
	defer func() { end(err) }()

	n, err := l.client.Get(ctx, key(email)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get login failures: %w", err)
	}
	return n >= l.cfg.MaxFailures, nil
}

// RecordFailure counts one failed attempt and returns the running total.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) (n int64, err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "IncrLoginFailures", "EVALSHA incr_with_window")
	defer func() { end(err) }()

	n, err = incrWithWindow.Run(ctx, l.client, []string{key(email)}, l.cfg.Window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr login failures: %w", err)
	}
	return n, nil
}

// Reset clears the failure count after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) (err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "ResetLoginFailures", "DEL")
	defer func() { end(err) }()

	if err = l.client.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("redis del login failures: %w", err)
	}
	return nil
}
