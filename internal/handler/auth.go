package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

var errRouteNotFound = domain.NewError(domain.ErrNotFound, "Route not found")

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth              *service.AuthService
	superAdminEnabled bool
	logger            *slog.Logger
}

// NewAuthHandler creates a new auth handler. superAdminEnabled exposes the
// super admin bootstrap endpoint.
func NewAuthHandler(auth *service.AuthService, superAdminEnabled bool, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, superAdminEnabled: superAdminEnabled, logger: logger}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

// CreateSuperAdmin handles POST /api/auth/super-admin
func (h *AuthHandler) CreateSuperAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.superAdminEnabled {
		writeError(w, r, h.logger, errRouteNotFound)
		return
	}
	var in service.SuperAdminInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.auth.CreateSuperAdmin(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ChangePasswordInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), c, in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Password changed successfully", nil)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	profile, err := h.auth.Me(r.Context(), c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, profile)
}

// Logout handles POST /api/auth/logout. Tokens are stateless; the client
// discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Logged out successfully", nil)
}
