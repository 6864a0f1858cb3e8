package domain

import (
	"time"
)

// Account is a stored storefront customer or administrator. Email is unique
// and serves as the token subject.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Phone        string    `json:"phone,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the authenticated identity bound to a request. It is derived
// from an Account on every request and never persisted.
type Principal struct {
	Subject     string   `json:"subject"`
	Authorities []string `json:"authorities"`
}

// NewPrincipal derives a Principal from the account's current state.
func NewPrincipal(a *Account) Principal {
	return Principal{
		Subject:     a.Email,
		Authorities: AuthoritiesFor(a.Role),
	}
}

// HasAuthority reports whether the principal holds the given authority.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// ExternalIdentity is a verified identity returned by an OAuth provider.
type ExternalIdentity struct {
	Email       string
	DisplayName string
	Provider    string
}
