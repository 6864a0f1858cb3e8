package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the only claims a storefront token carries. Roles are
// deliberately absent and re-derived from the account on every request.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is a freshly issued, signed token.
type Token struct {
	Raw       string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the clock used by Decode.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// TokenCodec issues and decodes HS256 tokens under a single shared secret.
// It is immutable after construction and safe for concurrent use. Rotating
// the secret invalidates every outstanding token.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec creates a codec signing with secret and issuing tokens valid for ttl.
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject. iat is truncated to whole seconds and exp
// rounded up, so the token never outlives now+ttl by less than the TTL.
func (c *TokenCodec) Issue(subject string, now time.Time) (Token, error) {
	if subject == "" {
		return Token{}, fmt.Errorf("issue token: %w", ErrMalformed)
	}

	iat := now.Truncate(time.Second)
	exp := now.Add(c.ttl)
	if t := exp.Truncate(time.Second); !t.Equal(exp) {
		exp = t.Add(time.Second)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{Raw: signed, Subject: subject, IssuedAt: iat, ExpiresAt: exp}, nil
}

type tokenHeader struct {
	Alg string `json:"alg"`
}

// Decode verifies raw and returns its claims. Checks run in a fixed order:
// shape, algorithm, signature, then claims, so ErrExpired is only ever
// reported for a token whose signature verified.
func (c *TokenCodec) Decode(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	headerJSON, err := base64.RawURLEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, ErrMalformed
	}
	if header.Alg != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, header.Alg)
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, ErrBadSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return nil, ErrBadSignature
	}

	claims := &Claims{}
	_, err = c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// IsExpired reports whether claims are past their expiry at now.
func IsExpired(claims *Claims, now time.Time) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !now.Before(claims.ExpiresAt.Time)
}
