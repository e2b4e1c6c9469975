package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/craftloom/backend/internal/auth"
	"github.com/craftloom/backend/internal/models"
	"github.com/craftloom/backend/internal/services"
	pkgauth "github.com/craftloom/backend/pkg/auth"
	pkghttp "github.com/craftloom/backend/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	Register(ctx context.Context, email, password, name, role string) (*services.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	Logout(ctx context.Context, accessToken string) error
	CheckIPLock(ctx context.Context, ipAddress string) (*models.LockStatus, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1"`
	Role     string `json:"role" validate:"required,oneof=buyer artisan"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Response DTOs

// LoginResponse is the success payload for login
type LoginResponse struct {
	Success      bool                   `json:"success"`
	User         *services.UserResponse `json:"user"`
	Token        string                 `json:"token"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
}

// LoginFailedResponse is the payload for a failed attempt with attempts remaining
type LoginFailedResponse struct {
	Message           string `json:"message"`
	RemainingAttempts int    `json:"remainingAttempts"`
}

// LockedResponse is the payload for a rejected attempt while locked
type LockedResponse struct {
	Message       string `json:"message"`
	Locked        bool   `json:"locked"`
	LockUntil     string `json:"lockUntil"`
	RemainingTime int    `json:"remainingTime"`
}

// IPLockResponse is the payload for the advisory lock-status probe
type IPLockResponse struct {
	Success       bool   `json:"success"`
	Locked        bool   `json:"locked"`
	LockUntil     string `json:"lockUntil,omitempty"`
	RemainingTime int    `json:"remainingTime,omitempty"`
}

// Login handles user login. Failure responses distinguish attempts remaining
// (401) from an active lock (429 with the countdown descriptor).
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		var lockErr *models.AccountLockedError
		var credErr *models.InvalidCredentialsError

		switch {
		case errors.As(err, &lockErr):
			pkghttp.WriteJSON(w, http.StatusTooManyRequests, LockedResponse{
				Message:       "Too many failed login attempts. Please try again later.",
				Locked:        true,
				LockUntil:     lockErr.LockedUntil.UTC().Format(time.RFC3339),
				RemainingTime: lockErr.RemainingSeconds(),
			})
		case errors.As(err, &credErr):
			pkghttp.WriteJSON(w, http.StatusUnauthorized, LoginFailedResponse{
				Message:           "Invalid email or password",
				RemainingAttempts: credErr.RemainingAttempts,
			})
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:      true,
		User:         authResp.User,
		Token:        authResp.AccessToken,
		RefreshToken: authResp.RefreshToken,
	})
}

// CheckIPLock reports whether the caller's network address is currently
// locked out, so a returning client can restore its countdown on page load.
func (h *AuthHandler) CheckIPLock(w http.ResponseWriter, r *http.Request) {
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	status, err := h.service.CheckIPLock(r.Context(), ipAddress)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := IPLockResponse{Success: true, Locked: status.Locked}
	if status.Locked {
		resp.LockUntil = status.LockedUntil.UTC().Format(time.RFC3339)
		resp.RemainingTime = status.RemainingSeconds(time.Now())
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Register handles new buyer and artisan accounts
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	authResp, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, pwErr.Error())
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid registration request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, LoginResponse{
		Success:      true,
		User:         authResp.User,
		Token:        authResp.AccessToken,
		RefreshToken: authResp.RefreshToken,
	})
}

// RefreshToken handles token refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:      true,
		User:         authResp.User,
		Token:        authResp.AccessToken,
		RefreshToken: authResp.RefreshToken,
	})
}

// Logout handles user logout by revoking the access token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	accessToken := auth.GetTokenFromContext(r)
	if accessToken == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Logout(r.Context(), accessToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
