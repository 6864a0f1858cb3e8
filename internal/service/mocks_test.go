package service

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockEvents) PublishAccountProvisioned(ctx context.Context, account *domain.Account, provider string) error {
	args := m.Called(ctx, account, provider)
	return args.Error(0)
}

// --- Mock Attempt Limiter ---

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Blocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockLimiter) RecordFailure(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLimiter) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- In-memory repository enforcing the unique email index ---

type memRepo struct {
	mu      sync.Mutex
	byEmail map[string]domain.Account
	inserts int
	gate    *lookupGate
}

func newMemRepo() *memRepo {
	return &memRepo{byEmail: make(map[string]domain.Account)}
}

func (r *memRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[a.Email]; ok {
		return apperrors.AlreadyExists("account", "email", a.Email)
	}
	r.byEmail[a.Email] = *a
	r.inserts++
	return nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	if r.gate != nil {
		r.gate.wait()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}

// lookupGate holds the first n lookups until all n have arrived, so every
// caller observes the account as missing before any of them inserts.
type lookupGate struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
}

func newLookupGate(n int) *lookupGate {
	return &lookupGate{n: n, release: make(chan struct{})}
}

func (g *lookupGate) wait() {
	g.mu.Lock()
	g.arrived++
	first := g.arrived <= g.n
	if g.arrived == g.n {
		close(g.release)
	}
	g.mu.Unlock()
	if first {
		<-g.release
	}
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func accountWithPassword(email, password string) *domain.Account {
	return &domain.Account{
		ID:           "acc-1",
		Email:        email,
		PasswordHash: hashForTest(password),
		DisplayName:  "Alice Smith",
		Role:         domain.RoleUser,
		Active:       true,
	}
}
