package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	"github.com/luxuryfashion/storefront/internal/service"
	"github.com/luxuryfashion/storefront/pkg/health"
	"github.com/luxuryfashion/storefront/pkg/middleware"
)

// ============================================================================
// Mocks
// ============================================================================

type mockLogins struct {
	mock.Mock
}

func (m *mockLogins) Login(ctx context.Context, input service.LoginInput) (auth.Token, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(auth.Token), args.Error(1)
}

func (m *mockLogins) Validate(raw string) (string, error) {
	args := m.Called(raw)
	return args.String(0), args.Error(1)
}

func (m *mockLogins) OAuthLogin(ctx context.Context, identity domain.ExternalIdentity) (auth.Token, bool, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(auth.Token), args.Bool(1), args.Error(2)
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, input service.RegisterInput) (*domain.Account, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "google" }

func (m *mockProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.ExternalIdentity), args.Error(1)
}

// ============================================================================
// Helpers
// ============================================================================

const testFrontend = "https://rangeelaboutique.com"

var testSecret = []byte("handler-test-secret-0123456789abcdef")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Fields    map[string]string `json:"fields"`
		RequestID string            `json:"request_id"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	return env
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type routerFixture struct {
	handler   http.Handler
	codec     *auth.TokenCodec
	logins    *mockLogins
	registrar *mockRegistrar
	resolver  *mockResolver
	provider  *mockProvider
}

func newRouterFixture(t *testing.T, mutate ...func(*RouterConfig)) *routerFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	policy, err := auth.NewAccessPolicy(auth.DefaultRules(), auth.Public)
	require.NoError(t, err)

	f := &routerFixture{
		codec:     auth.NewTokenCodec(testSecret, 24*time.Hour),
		logins:    new(mockLogins),
		registrar: new(mockRegistrar),
		resolver:  new(mockResolver),
		provider:  new(mockProvider),
	}
	logger := newTestLogger()

	cfg := RouterConfig{
		ServiceName:    "storefront",
		Authenticator:  auth.NewAuthenticator(policy, f.codec, f.resolver, testFrontend, logger),
		Logins:         f.logins,
		OAuthLogins:    f.logins,
		Accounts:       f.registrar,
		Provider:       f.provider,
		Health:         health.NewHandler(),
		Logger:         logger,
		FrontendURL:    testFrontend,
		CORS:           middleware.DefaultCORSConfig(),
		LoginRateRPS:   100,
		LoginRateBurst: 100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.handler = NewRouter(ctx, cfg)
	return f
}

func (f *routerFixture) token(t *testing.T, subject string, issuedAt time.Time) string {
	t.Helper()
	tok, err := f.codec.Issue(subject, issuedAt)
	require.NoError(t, err)
	return tok.Raw
}

func (f *routerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}
