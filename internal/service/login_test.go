package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type loginFixture struct {
	svc     *LoginService
	repo    *mockAccountRepository
	limiter *mockLimiter
	events  *mockEvents
	codec   *auth.TokenCodec
	now     time.Time
}

func newLoginFixture() *loginFixture {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := new(mockAccountRepository)
	limiter := new(mockLimiter)
	events := new(mockEvents)
	codec := auth.NewTokenCodec(testSecret, 24*time.Hour, auth.WithClock(func() time.Time { return now }))
	store := newTestStore(repo, events)
	svc := NewLoginService(store, codec, limiter, events, newTestLogger())
	svc.now = func() time.Time { return now }
	return &loginFixture{svc: svc, repo: repo, limiter: limiter, events: events, codec: codec, now: now}
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "alice@example.com").Return(false, nil)
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(accountWithPassword("alice@example.com", "password123"), nil)
	f.limiter.On("Reset", ctx, "alice@example.com").Return(nil)

	tok, err := f.svc.Login(ctx, LoginInput{Email: "Alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tok.Subject)
	assert.Equal(t, f.now.Add(24*time.Hour), tok.ExpiresAt)

	claims, err := f.codec.Decode(tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)

	f.limiter.AssertExpectations(t)
	f.limiter.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "alice@example.com").Return(false, nil)
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(accountWithPassword("alice@example.com", "password123"), nil)
	f.limiter.On("RecordFailure", ctx, "alice@example.com").Return(int64(1), nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	f.limiter.AssertExpectations(t)
	f.limiter.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "ghost@example.com").Return(false, nil)
	f.repo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)
	f.limiter.On("RecordFailure", ctx, "ghost@example.com").Return(int64(1), nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "whatever1"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.NotNil(t, f.svc.store.dummyHash, "unknown emails must still pay the bcrypt cost")
	f.limiter.AssertExpectations(t)
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	acc := accountWithPassword("alice@example.com", "password123")
	acc.Active = false
	f.limiter.On("Blocked", ctx, "alice@example.com").Return(false, nil)
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(acc, nil)
	f.limiter.On("RecordFailure", ctx, "alice@example.com").Return(int64(1), nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_Throttled(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "alice@example.com").Return(true, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	assert.ErrorIs(t, err, auth.ErrTooManyAttempts)
	f.repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestLogin_LimiterFailureFailsOpen(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "alice@example.com").Return(false, errors.New("redis: connection refused"))
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(accountWithPassword("alice@example.com", "password123"), nil)
	f.limiter.On("Reset", ctx, "alice@example.com").Return(errors.New("redis: connection refused"))

	tok, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Raw)
}

func TestLogin_StoreFailure(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.limiter.On("Blocked", ctx, "alice@example.com").Return(false, nil)
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("connection refused"))

	_, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	f.limiter.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestLogin_MissingFields(t *testing.T) {
	f := newLoginFixture()

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLogin_WithoutLimiter(t *testing.T) {
	repo := new(mockAccountRepository)
	ctx := context.Background()
	repo.On("GetByEmail", ctx, "alice@example.com").Return(accountWithPassword("alice@example.com", "password123"), nil)

	svc := NewLoginService(newTestStore(repo, nil), auth.NewTokenCodec(testSecret, time.Hour), nil, nil, newTestLogger())
	tok, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tok.Subject)
}

// --- OAuthLogin Tests ---

func TestOAuthLogin_NewAccount(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.repo.On("GetByEmail", ctx, "new@example.com").Return(nil, apperrors.ErrNotFound)
	f.repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)
	f.events.On("PublishAccountProvisioned", ctx, mock.MatchedBy(func(a *domain.Account) bool {
		return a.Email == "new@example.com" && a.Role == domain.RoleUser
	}), "google").Return(nil)

	tok, created, err := f.svc.OAuthLogin(ctx, domain.ExternalIdentity{
		Email: "new@example.com", DisplayName: "New Person", Provider: "google",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new@example.com", tok.Subject)
	f.events.AssertExpectations(t)
}

func TestOAuthLogin_ExistingAccount(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(accountWithPassword("alice@example.com", "password123"), nil)

	tok, created, err := f.svc.OAuthLogin(ctx, domain.ExternalIdentity{Email: "alice@example.com", Provider: "google"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice@example.com", tok.Subject)
	f.events.AssertNotCalled(t, "PublishAccountProvisioned", mock.Anything, mock.Anything, mock.Anything)
}

func TestOAuthLogin_InactiveAccount(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	acc := accountWithPassword("alice@example.com", "password123")
	acc.Active = false
	f.repo.On("GetByEmail", ctx, "alice@example.com").Return(acc, nil)

	_, _, err := f.svc.OAuthLogin(ctx, domain.ExternalIdentity{Email: "alice@example.com", Provider: "google"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestOAuthLogin_NoEmail(t *testing.T) {
	f := newLoginFixture()

	_, _, err := f.svc.OAuthLogin(context.Background(), domain.ExternalIdentity{Provider: "google"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Validate Tests ---

func TestValidate(t *testing.T) {
	f := newLoginFixture()

	_, err := f.svc.Validate("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	tok, err := f.codec.Issue("alice@example.com", f.now)
	require.NoError(t, err)
	sub, err := f.svc.Validate(tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sub)

	old, err := f.codec.Issue("alice@example.com", f.now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = f.svc.Validate(old.Raw)
	assert.ErrorIs(t, err, auth.ErrExpired)

	_, err = f.svc.Validate("garbage")
	assert.ErrorIs(t, err, auth.ErrMalformed)
}
