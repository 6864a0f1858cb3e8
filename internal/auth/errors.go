package auth

import (
	"errors"

	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

// Authentication failure kinds. Token errors are returned by TokenCodec.Decode,
// the rest by the credential and login paths.
var (
	ErrMissingToken       = errors.New("auth: no token presented")
	ErrMalformed          = errors.New("auth: malformed token")
	ErrBadSignature       = errors.New("auth: token signature mismatch")
	ErrExpired            = errors.New("auth: token expired")
	ErrUnsupported        = errors.New("auth: unsupported token algorithm")
	ErrUnknownSubject     = errors.New("auth: token subject does not resolve to an active account")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountConflict    = errors.New("auth: account already exists")
	ErrStoreUnavailable   = errors.New("auth: credential store unavailable")
	ErrTooManyAttempts    = errors.New("auth: too many failed attempts")
)

// Rejection codes rendered to clients.
const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeAccountConflict    = "ACCOUNT_CONFLICT"
)

// IsTokenInvalid reports whether err means the presented token must not be
// trusted, as opposed to being absent or merely expired.
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrUnknownSubject)
}

// ToAppError maps an authentication failure to its transport representation.
// Errors it does not recognise become 500s.
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMissingToken):
		return apperrors.UnauthorizedCode(CodeMissingToken, "authentication required", err)
	case errors.Is(err, ErrExpired):
		return apperrors.UnauthorizedCode(CodeTokenExpired, "token has expired", err)
	case IsTokenInvalid(err):
		return apperrors.UnauthorizedCode(CodeInvalidToken, "token is invalid", err)
	case errors.Is(err, ErrInvalidCredentials):
		return apperrors.UnauthorizedCode(CodeInvalidCredentials, "invalid email or password", err)
	case errors.Is(err, ErrTooManyAttempts):
		return apperrors.TooManyRequests(CodeTooManyAttempts, "too many failed login attempts, try again later")
	case errors.Is(err, ErrAccountConflict):
		return apperrors.Conflict(CodeAccountConflict, "account could not be created, try again")
	case errors.Is(err, ErrStoreUnavailable):
		return apperrors.ServiceUnavailable(err)
	case errors.As(err, &appErr):
		return appErr
	default:
		return apperrors.Internal(err)
	}
}
