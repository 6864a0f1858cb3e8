package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	"github.com/luxuryfashion/storefront/internal/repository"
	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

// DefaultBcryptCost is the cost factor for bcrypt password hashing.
const DefaultBcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// maxPasswordLength is bcrypt's input limit; longer passwords are rejected
// rather than silently truncated.
const maxPasswordLength = 72

// unusableSecretBytes is the size of the random secret hashed into the
// password of OAuth-provisioned accounts.
const unusableSecretBytes = 32

// EventPublisher publishes account lifecycle events.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, account *domain.Account) error
	PublishAccountProvisioned(ctx context.Context, account *domain.Account, provider string) error
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Password  string
}

// CredentialStore is the read and provisioning path for accounts. It owns
// password hashing and maps repository failures onto the auth taxonomy.
type CredentialStore struct {
	repo   repository.AccountRepository
	cost   int
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time

	// dummyHash is built once at construction so the first unknown-email
	// login costs the same as every later one.
	dummyHash []byte
}

// NewCredentialStore creates a CredentialStore hashing with the given bcrypt
// cost. events may be nil.
func NewCredentialStore(repo repository.AccountRepository, cost int, events EventPublisher, logger *slog.Logger) *CredentialStore {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	s := &CredentialStore{
		repo:   repo,
		cost:   cost,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	hash, err := s.unusableHash()
	if err != nil {
		logger.Error("failed to build dummy hash", slog.String("error", err.Error()))
	}
	s.dummyHash = hash
	return s
}

// NormalizeEmail lower-cases and trims an email so lookups and the unique
// index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns the account for email. Missing accounts yield
// apperrors.ErrNotFound; any other repository failure is reported as
// auth.ErrStoreUnavailable.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, storeUnavailable("find account", err)
	}
	return a, nil
}

// FindOrCreate returns the account for email, provisioning a USER account
// with an unusable password when none exists. When two callers race to
// create the same email, the loser's insert hits the unique index and is
// retried exactly once as a read, so both observe the same account and only
// the winner sees created=true.
func (s *CredentialStore) FindOrCreate(ctx context.Context, email, displayNameHint string) (*domain.Account, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, apperrors.InvalidInput("email is required")
	}

	existing, err := s.FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	hash, err := s.unusableHash()
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayNameHint),
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.repo.Create(ctx, account)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "account provisioned",
			slog.String("account_id", account.ID),
			slog.String("email", account.Email),
		)
		return account, true, nil
	case errors.Is(err, apperrors.ErrAlreadyExists):
		winner, readErr := s.FindByEmail(ctx, email)
		if readErr != nil {
			if errors.Is(readErr, apperrors.ErrNotFound) {
				return nil, false, fmt.Errorf("find or create %s: %w", email, auth.ErrAccountConflict)
			}
			return nil, false, readErr
		}
		return winner, false, nil
	default:
		return nil, false, storeUnavailable("create account", err)
	}
}

// VerifyPassword reports whether plaintext matches the account's hash.
func (s *CredentialStore) VerifyPassword(account *domain.Account, plaintext string) bool {
	if account == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(plaintext)) == nil
}

// CompareDummy burns the same bcrypt work as VerifyPassword against a hash
// nobody knows the password for. Login calls it for unknown emails so that
// response time does not reveal whether an account exists.
func (s *CredentialStore) CompareDummy(plaintext string) {
	if s.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(plaintext))
	}
}

// Register creates a password account. A duplicate email yields a 409
// ALREADY_EXISTS error.
func (s *CredentialStore) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, apperrors.InvalidInput("first name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(input.FirstName + " " + input.LastName),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, storeUnavailable("create account", err)
	}

	if s.events != nil {
		if err := s.events.PublishAccountRegistered(ctx, account); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish account.registered event",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return account, nil
}

func (s *CredentialStore) unusableHash() ([]byte, error) {
	secret := make([]byte, unusableSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate random secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash random secret: %w", err)
	}
	return hash, nil
}

func storeUnavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(auth.ErrStoreUnavailable, err))
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}
