package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// StateCookieName is the cookie binding a callback to the browser that
// started the flow.
const StateCookieName = "oauth_state"

const (
	stateBytes  = 32
	stateMaxAge = 10 * time.Minute
)

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// StateCookie carries state across the provider redirect. SameSite=Lax lets
// it ride the top-level GET back from the provider.
func StateCookie(state string) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateMaxAge / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearStateCookie expires the state cookie.
func ClearStateCookie() *http.Cookie {
	c := StateCookie("")
	c.MaxAge = -1
	return c
}

// VerifyState reports whether the callback's state matches the cookie.
func VerifyState(r *http.Request, state string) bool {
	c, err := r.Cookie(StateCookieName)
	if err != nil || c.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) == 1
}
