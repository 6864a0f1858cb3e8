package repository

import (
	"context"

	"github.com/luxuryfashion/storefront/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account. A duplicate email yields an
	// apperrors.AlreadyExists error.
	Create(ctx context.Context, account *domain.Account) error

	// GetByEmail retrieves an account by its (normalised) email address.
	// Missing accounts yield apperrors.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}
