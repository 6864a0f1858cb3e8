// Package oauth runs the OAuth 2.0 authorization code flow against an
// external identity provider and returns the verified identity.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
	"github.com/luxuryfashion/storefront/pkg/httpclient"
)

// GoogleUserInfoURL is Google's OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// ErrEmailNotVerified is returned when the provider does not vouch for the
// identity's email address.
var ErrEmailNotVerified = errors.New("oauth: provider email not verified")

// Config holds OAuth client registration. AuthURL, TokenURL and UserInfoURL
// default to Google's endpoints when empty.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// Enabled reports whether client credentials are configured.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// userInfo is the subset of the OpenID Connect userinfo response used here.
type userInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Provider exchanges authorization codes for verified identities.
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewGoogleProvider creates a Provider for Google sign-in. client carries the
// retry and circuit breaker transport used for every provider call.
func NewGoogleProvider(cfg Config, client *http.Client) *Provider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		client:      client,
	}
}

// Name returns the provider identifier recorded on provisioned accounts.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for the user's verified identity.
// Provider rejections are 401 PROVIDER_REJECTED; provider outages, including
// an open circuit, are 503.
func (p *Provider) Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error) {
	if code == "" {
		return domain.ExternalIdentity{}, apperrors.InvalidInput("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return domain.ExternalIdentity{}, p.classify("exchange code", err)
	}

	info, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}

	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" || !info.EmailVerified {
		return domain.ExternalIdentity{}, ErrEmailNotVerified
	}

	return domain.ExternalIdentity{
		Email:       email,
		DisplayName: strings.TrimSpace(info.Name),
		Provider:    p.name,
	}, nil
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, p.classify("fetch userinfo", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, p.name)
	}
	defer func() { _ = resp.Body.Close() }()

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

func (p *Provider) classify(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		status := rErr.Response.StatusCode
		cause := fmt.Errorf("%s: %w", op, err)
		if status >= 500 || status == http.StatusTooManyRequests {
			return apperrors.ServiceUnavailable(cause)
		}
		return apperrors.UnauthorizedCode("PROVIDER_REJECTED", p.name+" rejected the authorization code", cause)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.ServiceUnavailable(fmt.Errorf("%s: %w", op, err))
}
