package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	"github.com/luxuryfashion/storefront/internal/oauth"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
	"github.com/luxuryfashion/storefront/pkg/httputil"
	"github.com/luxuryfashion/storefront/pkg/logger"
)

// Redirect error codes appended to the frontend login page.
const (
	oauthErrorRejected    = "oauth"
	oauthErrorUnavailable = "oauth_unavailable"
)

// IdentityProvider verifies a user with an external OAuth provider.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error)
}

// OAuthLoginer issues a session for a verified external identity.
type OAuthLoginer interface {
	OAuthLogin(ctx context.Context, identity domain.ExternalIdentity) (auth.Token, bool, error)
}

// OAuthHandler runs the browser side of the authorization code flow.
type OAuthHandler struct {
	provider    IdentityProvider
	logins      OAuthLoginer
	frontendURL string
	logger      *slog.Logger
}

// NewOAuthHandler creates a new OAuth HTTP handler.
func NewOAuthHandler(provider IdentityProvider, logins OAuthLoginer, frontendURL string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		provider:    provider,
		logins:      logins,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// Authorize handles GET /oauth2/authorization/{provider}
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	state, err := oauth.NewState()
	if err != nil {
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
		return
	}
	http.SetCookie(w, oauth.StateCookie(state))
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /login/oauth2/code/{provider}
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	http.SetCookie(w, oauth.ClearStateCookie())

	if reason := q.Get("error"); reason != "" {
		h.fail(w, r, apperrors.UnauthorizedCode("PROVIDER_REJECTED", "provider returned "+reason, nil))
		return
	}
	if !oauth.VerifyState(r, q.Get("state")) {
		h.fail(w, r, apperrors.Unauthorized("oauth state mismatch"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.Success(w, r, identity)
}

// Success finds or provisions the account for identity, sets the session
// cookie and sends the browser to the shop.
func (h *OAuthHandler) Success(w http.ResponseWriter, r *http.Request, identity domain.ExternalIdentity) {
	token, _, err := h.logins.OAuthLogin(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, auth.NewTokenCookie(token.Raw, http.SameSiteNoneMode))
	http.Redirect(w, r, h.frontendURL+"/shop", http.StatusFound)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	l := logger.FromContext(ctx)
	if l == slog.Default() && h.logger != nil {
		l = h.logger
	}

	code := oauthErrorRejected
	status := auth.ToAppError(err).Status
	switch {
	case status == http.StatusServiceUnavailable:
		code = oauthErrorUnavailable
		l.ErrorContext(ctx, "oauth login failed", slog.String("provider", h.provider.Name()), slog.String("error", err.Error()))
	case errors.Is(err, context.Canceled):
		return
	case status >= http.StatusInternalServerError && !errors.Is(err, oauth.ErrEmailNotVerified):
		l.ErrorContext(ctx, "oauth login failed", slog.String("provider", h.provider.Name()), slog.String("error", err.Error()))
	default:
		l.WarnContext(ctx, "oauth login rejected", slog.String("provider", h.provider.Name()), slog.String("error", err.Error()))
	}

	http.Redirect(w, r, h.frontendURL+"/login?error="+url.QueryEscape(code), http.StatusFound)
}
