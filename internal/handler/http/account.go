package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/domain"
	"github.com/luxuryfashion/storefront/internal/service"
	"github.com/luxuryfashion/storefront/pkg/httputil"
)

// Registrar creates password accounts.
type Registrar interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.Account, error)
}

// AccountHandler serves registration and the signed-in principal.
type AccountHandler struct {
	accounts Registrar
	logger   *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(accounts Registrar, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// RegisterRequest is the JSON request body for account registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
}

// Register handles POST /users/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, auth.ToAppError(err), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: account})
}

// Me handles GET /admin-api/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: principal})
}
