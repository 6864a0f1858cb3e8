package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

// AttemptLimiter counts failed logins per key.
type AttemptLimiter interface {
	Blocked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// LoginInput holds the parameters for a password login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginService issues tokens for password and OAuth logins. It is the only
// caller of TokenCodec.Issue.
type LoginService struct {
	store   *CredentialStore
	codec   *auth.TokenCodec
	limiter AttemptLimiter
	events  EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewLoginService creates a LoginService. limiter and events may be nil.
func NewLoginService(store *CredentialStore, codec *auth.TokenCodec, limiter AttemptLimiter, events EventPublisher, logger *slog.Logger) *LoginService {
	return &LoginService{
		store:   store,
		codec:   codec,
		limiter: limiter,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Login verifies an email and password and issues a token. Unknown emails,
// wrong passwords and deactivated accounts are indistinguishable to the
// caller, both in the error returned and in the bcrypt work performed.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (auth.Token, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return auth.Token{}, apperrors.InvalidInput("email and password are required")
	}

	if s.blocked(ctx, email) {
		s.logger.WarnContext(ctx, "login throttled", slog.String("email", email))
		return auth.Token{}, auth.ErrTooManyAttempts
	}

	account, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		s.store.CompareDummy(input.Password)
		s.recordFailure(ctx, email, "unknown_account")
		return auth.Token{}, auth.ErrInvalidCredentials
	default:
		return auth.Token{}, err
	}

	if !s.store.VerifyPassword(account, input.Password) {
		s.recordFailure(ctx, email, "password_mismatch")
		return auth.Token{}, auth.ErrInvalidCredentials
	}
	if !account.Active {
		s.recordFailure(ctx, email, "account_inactive")
		return auth.Token{}, auth.ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", slog.String("error", err.Error()))
		}
	}

	token, err := s.codec.Issue(account.Email, s.now())
	if err != nil {
		return auth.Token{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("account_id", account.ID),
		slog.String("method", "password"),
	)
	return token, nil
}

// OAuthLogin is the success callback for a verified external identity. It
// provisions the account on first sight and issues a token.
func (s *LoginService) OAuthLogin(ctx context.Context, identity domain.ExternalIdentity) (auth.Token, bool, error) {
	if NormalizeEmail(identity.Email) == "" {
		return auth.Token{}, false, apperrors.InvalidInput("identity has no email")
	}

	account, created, err := s.store.FindOrCreate(ctx, identity.Email, identity.DisplayName)
	if err != nil {
		return auth.Token{}, false, err
	}
	if !account.Active {
		s.logger.WarnContext(ctx, "oauth login for inactive account",
			slog.String("account_id", account.ID),
			slog.String("provider", identity.Provider),
		)
		return auth.Token{}, false, auth.ErrInvalidCredentials
	}

	if created && s.events != nil {
		if err := s.events.PublishAccountProvisioned(ctx, account, identity.Provider); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish account.provisioned event",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	token, err := s.codec.Issue(account.Email, s.now())
	if err != nil {
		return auth.Token{}, false, fmt.Errorf("issue token: %w", err)
	}

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("account_id", account.ID),
		slog.String("method", "oauth"),
		slog.String("provider", identity.Provider),
		slog.Bool("created", created),
	)
	return token, created, nil
}

// Validate decodes a cookie token without touching the store. It backs the
// frontend's session probe.
func (s *LoginService) Validate(raw string) (string, error) {
	if raw == "" {
		return "", auth.ErrMissingToken
	}
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// TokenTTL is the lifetime of issued tokens.
func (s *LoginService) TokenTTL() time.Duration {
	return s.codec.TTL()
}

// blocked fails open: a limiter outage must not lock everyone out.
func (s *LoginService) blocked(ctx context.Context, email string) bool {
	if s.limiter == nil {
		return false
	}
	blocked, err := s.limiter.Blocked(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "login limiter unavailable", slog.String("error", err.Error()))
		return false
	}
	return blocked
}

func (s *LoginService) recordFailure(ctx context.Context, email, reason string) {
	attrs := []any{slog.String("reason", reason)}
	if s.limiter != nil {
		n, err := s.limiter.RecordFailure(ctx, email)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to record login failure", slog.String("error", err.Error()))
		} else {
			attrs = append(attrs, slog.Int64("failures", n))
		}
	}
	s.logger.WarnContext(ctx, "login failed", attrs...)
}
