package oauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_RandomAndURLSafe(t *testing.T) {
	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "=")
}

func TestStateCookie_Attributes(t *testing.T) {
	c := StateCookie("abc")

	assert.Equal(t, StateCookieName, c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestClearStateCookie(t *testing.T) {
	c := ClearStateCookie()
	assert.Equal(t, StateCookieName, c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
}

func TestVerifyState(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		state  string
		want   bool
	}{
		{name: "match", cookie: "abc", state: "abc", want: true},
		{name: "mismatch", cookie: "abc", state: "abd", want: false},
		{name: "empty state", cookie: "abc", state: "", want: false},
		{name: "no cookie", cookie: "", state: "abc", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/google", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: StateCookieName, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, VerifyState(r, tt.state))
		})
	}
}
