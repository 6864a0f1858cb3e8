package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/service"
	"github.com/luxuryfashion/storefront/pkg/httputil"
)

// LoginUseCase is the password login and session probe surface.
type LoginUseCase interface {
	Login(ctx context.Context, input service.LoginInput) (auth.Token, error)
	Validate(raw string) (string, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	logins LoginUseCase
	logger *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(logins LoginUseCase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{logins: logins, logger: logger}
}

// LoginRequest is the JSON request body for a password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// SubjectResponse is returned by the session probe.
type SubjectResponse struct {
	Subject string `json:"subject"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	token, err := h.logins.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, auth.ToAppError(err), h.logger)
		return
	}

	http.SetCookie(w, auth.NewTokenCookie(token.Raw, http.SameSiteStrictMode))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "login successful"},
	})
}

// Validate handles POST /auth/validate. Only the cookie is consulted.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	subject, err := h.logins.Validate(auth.TokenFromCookie(r))
	if err != nil {
		httputil.WriteError(w, r, auth.ToAppError(err), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: SubjectResponse{Subject: subject},
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearTokenCookie())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "logged out"},
	})
}
