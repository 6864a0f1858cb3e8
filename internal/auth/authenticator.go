package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
	"github.com/luxuryfashion/storefront/pkg/httputil"
	"github.com/luxuryfashion/storefront/pkg/logger"
)

// AccountResolver looks up the account behind a token subject. Missing
// accounts are reported as apperrors.ErrNotFound; any other error is treated
// as the store being unavailable.
type AccountResolver interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// Authenticator gates requests on protected paths. Public paths pass through
// untouched; protected paths must present a token that decodes under the
// current secret and names an active account.
type Authenticator struct {
	policy   *AccessPolicy
	codec    *TokenCodec
	accounts AccountResolver
	loginURL string
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. frontendURL is the base used for
// redirect-mode rejections.
func NewAuthenticator(policy *AccessPolicy, codec *TokenCodec, accounts AccountResolver, frontendURL string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		policy:   policy,
		codec:    codec,
		accounts: accounts,
		loginURL: strings.TrimSuffix(frontendURL, "/") + "/login",
		logger:   logger,
	}
}

// ExtractToken returns the bearer token from the Authorization header, falling
// back to the session cookie.
func ExtractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, nil
			}
		}
	}
	if token := TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

// Authenticate runs extraction, decoding and subject resolution for r and
// returns the principal to bind.
func (a *Authenticator) Authenticate(r *http.Request) (domain.Principal, error) {
	raw, err := ExtractToken(r)
	if err != nil {
		return domain.Principal{}, err
	}

	claims, err := a.codec.Decode(raw)
	if err != nil {
		return domain.Principal{}, err
	}

	return a.resolve(r.Context(), claims.Subject)
}

func (a *Authenticator) resolve(ctx context.Context, subject string) (domain.Principal, error) {
	account, err := a.accounts.FindByEmail(ctx, subject)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.Principal{}, ErrUnknownSubject
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Principal{}, err
	case errors.Is(err, ErrStoreUnavailable):
		return domain.Principal{}, err
	default:
		return domain.Principal{}, errors.Join(ErrStoreUnavailable, err)
	}

	if !account.Active {
		return domain.Principal{}, ErrUnknownSubject
	}
	return domain.NewPrincipal(account), nil
}

// Middleware returns the request gate.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		decision := a.policy.Classify(r.Method, r.URL.Path)
		if !decision.Required {
			authDecisions.WithLabelValues(OutcomePassthrough).Inc()
			next.ServeHTTP(w, r)
			return
		}

		if _, ok := PrincipalFromContext(ctx); ok {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.Authenticate(r)
		if ctx.Err() != nil {
			// The client is gone. Bind nothing and forward nothing.
			logger.FromContext(ctx).DebugContext(ctx, "request cancelled during authentication",
				slog.String("path", r.URL.Path),
			)
			return
		}

		outcome := outcomeFor(err)
		authDecisions.WithLabelValues(outcome).Inc()
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("auth.outcome", outcome),
			attribute.String("auth.rule", decision.Rule),
		)

		if err != nil {
			a.reject(w, r, decision, outcome, err)
			return
		}

		ctx = WithPrincipal(ctx, principal)
		ctx = logger.WithSubject(ctx, principal.Subject)
		l := logger.FromContext(ctx).With(slog.String("subject", principal.Subject))
		ctx = logger.NewContext(ctx, l)

		l.InfoContext(ctx, "request authenticated",
			slog.String("path", r.URL.Path),
			slog.String("rule", decision.Rule),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, decision AccessDecision, reason string, err error) {
	ctx := r.Context()
	l := logger.FromContext(ctx)
	if l == slog.Default() && a.logger != nil {
		l = a.logger
	}

	if !errors.Is(err, ErrStoreUnavailable) {
		l.WarnContext(ctx, "request rejected",
			slog.String("path", r.URL.Path),
			slog.String("rule", decision.Rule),
			slog.String("reason", reason),
		)
	}

	if decision.Reject == RejectRedirect && (errors.Is(err, ErrMissingToken) || errors.Is(err, ErrExpired)) {
		http.Redirect(w, r, a.loginURL, http.StatusSeeOther)
		return
	}

	httputil.WriteError(w, r, ToAppError(err), a.logger)
}

// RequirePrincipal returns the principal bound to r or writes a 401 and
// returns false. Handlers behind the authenticator use it as a guard.
func RequirePrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, ToAppError(ErrMissingToken), nil)
		return domain.Principal{}, false
	}
	return p, true
}
