package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

func newTestStore(repo *mockAccountRepository, events EventPublisher) *CredentialStore {
	return NewCredentialStore(repo, bcrypt.MinCost, events, newTestLogger())
}

// --- FindByEmail Tests ---

func TestFindByEmail_NormalizesEmail(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	acc := accountWithPassword("alice@example.com", "password123")
	repo.On("GetByEmail", ctx, "alice@example.com").Return(acc, nil)

	got, err := store.FindByEmail(ctx, "  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, acc, got)
	repo.AssertExpectations(t)
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, err := store.FindByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, errors.Is(err, auth.ErrStoreUnavailable))
}

func TestFindByEmail_StoreFailure(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("dial tcp: connection refused"))

	_, err := store.FindByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestFindByEmail_CancelledIsNotStoreFailure(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "alice@example.com").Return(nil, context.Canceled)

	_, err := store.FindByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, auth.ErrStoreUnavailable))
}

// --- FindOrCreate Tests ---

func TestFindOrCreate_Existing(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	acc := accountWithPassword("alice@example.com", "password123")
	repo.On("GetByEmail", ctx, "alice@example.com").Return(acc, nil)

	got, created, err := store.FindOrCreate(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acc, got)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFindOrCreate_ProvisionsUserWithUnusablePassword(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "new@example.com").Return(nil, apperrors.ErrNotFound)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)

	got, created, err := store.FindOrCreate(ctx, "New@Example.com", " New Person ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "New Person", got.DisplayName)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Empty(t, got.Gender)
	assert.True(t, got.Active)
	assert.NotEmpty(t, got.PasswordHash)
	assert.False(t, store.VerifyPassword(got, ""))
	assert.NotZero(t, got.CreatedAt)
	repo.AssertExpectations(t)
}

func TestFindOrCreate_ConflictRetriesAsRead(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	winner := accountWithPassword("race@example.com", "password123")
	repo.On("GetByEmail", ctx, "race@example.com").Return(nil, apperrors.ErrNotFound).Once()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).
		Return(apperrors.AlreadyExists("account", "email", "race@example.com"))
	repo.On("GetByEmail", ctx, "race@example.com").Return(winner, nil).Once()

	got, created, err := store.FindOrCreate(ctx, "race@example.com", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner, got)
	repo.AssertExpectations(t)
}

func TestFindOrCreate_ConflictButStillMissing(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "race@example.com").Return(nil, apperrors.ErrNotFound).Twice()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).
		Return(apperrors.AlreadyExists("account", "email", "race@example.com")).Once()

	_, _, err := store.FindOrCreate(ctx, "race@example.com", "")
	assert.ErrorIs(t, err, auth.ErrAccountConflict)
	repo.AssertExpectations(t)
}

func TestFindOrCreate_CreateFailure(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "new@example.com").Return(nil, apperrors.ErrNotFound)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(errors.New("connection reset"))

	_, _, err := store.FindOrCreate(ctx, "new@example.com", "")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

func TestFindOrCreate_EmptyEmail(t *testing.T) {
	store := newTestStore(new(mockAccountRepository), nil)

	_, _, err := store.FindOrCreate(context.Background(), "  ", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFindOrCreate_ConcurrentCallersCreateOneAccount(t *testing.T) {
	const callers = 16
	repo := newMemRepo()
	repo.gate = newLookupGate(callers)
	store := NewCredentialStore(repo, bcrypt.MinCost, nil, newTestLogger())

	type result struct {
		account *domain.Account
		created bool
		err     error
	}
	results := make([]result, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, created, err := store.FindOrCreate(context.Background(), "shared@example.com", "Shared")
			results[i] = result{a, created, err}
		}(i)
	}
	wg.Wait()

	createdCount := 0
	ids := make(map[string]struct{})
	for _, r := range results {
		require.NoError(t, r.err)
		if r.created {
			createdCount++
		}
		ids[r.account.ID] = struct{}{}
	}

	assert.Equal(t, 1, createdCount)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, repo.inserts)
}

// --- VerifyPassword Tests ---

func TestVerifyPassword(t *testing.T) {
	store := newTestStore(new(mockAccountRepository), nil)
	acc := accountWithPassword("alice@example.com", "correct-horse")

	assert.True(t, store.VerifyPassword(acc, "correct-horse"))
	assert.False(t, store.VerifyPassword(acc, "wrong-horse"))
	assert.False(t, store.VerifyPassword(nil, "correct-horse"))
}

func TestNewCredentialStore_BuildsDummyHashUpFront(t *testing.T) {
	store := newTestStore(new(mockAccountRepository), nil)

	require.NotNil(t, store.dummyHash, "the first unknown-email login must not pay for hashing")
	cost, err := bcrypt.Cost(store.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost, "dummy compare must cost the same as a real one")

	before := string(store.dummyHash)
	store.CompareDummy("anything")
	store.CompareDummy("again")
	assert.Equal(t, before, string(store.dummyHash))
}

// --- Register Tests ---

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:     "John@Example.com",
		FirstName: "John",
		LastName:  "Doe",
		Phone:     "+441234567890",
		Password:  "SecurePass123",
	}
}

func TestRegister_Success(t *testing.T) {
	repo := new(mockAccountRepository)
	events := new(mockEvents)
	store := newTestStore(repo, events)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)
	events.On("PublishAccountRegistered", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)

	acc, err := store.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", acc.Email)
	assert.Equal(t, "John Doe", acc.DisplayName)
	assert.Equal(t, "+441234567890", acc.Phone)
	assert.Equal(t, domain.RoleUser, acc.Role)
	assert.True(t, acc.Active)
	assert.True(t, store.VerifyPassword(acc, "SecurePass123"))

	repo.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := new(mockAccountRepository)
	events := new(mockEvents)
	store := newTestStore(repo, events)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).
		Return(apperrors.AlreadyExists("account", "email", "john@example.com"))

	_, err := store.Register(ctx, validRegisterInput())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	events.AssertNotCalled(t, "PublishAccountRegistered", mock.Anything, mock.Anything)
}

func TestRegister_ShortPassword(t *testing.T) {
	store := newTestStore(new(mockAccountRepository), nil)
	in := validRegisterInput()
	in.Password = "short"

	_, err := store.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRegister_MissingFirstName(t *testing.T) {
	store := newTestStore(new(mockAccountRepository), nil)
	in := validRegisterInput()
	in.FirstName = " "

	_, err := store.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRegister_EventFailureDoesNotFail(t *testing.T) {
	repo := new(mockAccountRepository)
	events := new(mockEvents)
	store := newTestStore(repo, events)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)
	events.On("PublishAccountRegistered", ctx, mock.AnythingOfType("*domain.Account")).Return(errors.New("broker down"))

	acc, err := store.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.NotNil(t, acc)
}

func TestRegister_StoreFailure(t *testing.T) {
	repo := new(mockAccountRepository)
	store := newTestStore(repo, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(errors.New("connection reset"))

	_, err := store.Register(ctx, validRegisterInput())
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}
