package auth

import (
	"net/http"
	"time"
)

// CookieName is the cookie carrying the session token.
const CookieName = "authToken"

// CookieMaxAge is the lifetime advertised to browsers. It matches the
// default token TTL.
const CookieMaxAge = 24 * time.Hour

// NewTokenCookie builds the HttpOnly, Secure session cookie. Password logins
// use SameSite=Strict; the OAuth callback needs SameSite=None because the
// browser arrives from the provider's origin.
func NewTokenCookie(token string, sameSite http.SameSite) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: sameSite,
	}
}

// ClearTokenCookie expires the session cookie.
func ClearTokenCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// TokenFromCookie returns the session cookie value, or "" if absent.
func TokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
