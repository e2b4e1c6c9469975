package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/craftloom/backend/internal/auth"
	"github.com/craftloom/backend/internal/models"
	pkgauth "github.com/craftloom/backend/pkg/auth"
	pkglogger "github.com/craftloom/backend/pkg/logger"
)

// UserRepository defines the interface for user storage operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// LockoutLedger is the decision surface the login flow consults. Implemented by
// LockoutService.
type LockoutLedger interface {
	CheckAttempt(ctx context.Context, email, ip string) (*models.LockStatus, error)
	RecordFailure(ctx context.Context, email, ip string) (*models.LockStatus, error)
	RecordSuccess(ctx context.Context, email, ip string) error
	IPStatus(ctx context.Context, ip string) (*models.LockStatus, error)
}

// LockoutAlertSender notifies an account owner that their account was locked
type LockoutAlertSender interface {
	SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	revokeRepo  TokenRevocationRepository
	lockouts    LockoutLedger
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	alerts      LockoutAlertSender
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService. alerts may be nil when lockout
// emails are disabled.
func NewAuthService(
	repo UserRepository,
	revokeRepo TokenRevocationRepository,
	lockouts LockoutLedger,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	alerts LockoutAlertSender,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		revokeRepo:  revokeRepo,
		lockouts:    lockouts,
		tm:          tm,
		timing:      timing,
		alerts:      alerts,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login authenticates a user and returns tokens. The lockout ledger is
// consulted before any credential work, so a locked key is rejected without
// leaking whether the account exists. A ledger storage error denies the
// attempt (fail closed), never allows it.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, error) {
	start := time.Now()

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	status, err := s.lockouts.CheckAttempt(ctx, email, ipAddress)
	if err != nil {
		s.logger.Error("lockout ledger check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if status.Locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_rejected",
			Email:         email,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "locked",
			LockedUntil:   status.LockedUntil,
		})
		return nil, &models.AccountLockedError{LockedUntil: *status.LockedUntil}
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown accounts count as failures too, indistinguishable from a
			// wrong password to the caller
			return nil, s.failLogin(ctx, start, nil, email, ipAddress, userAgent)
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "account_blocked",
		})
		s.timing.WaitFrom(start)
		return nil, models.ErrUnauthorized
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.failLogin(ctx, start, user, email, ipAddress, userAgent)
	}

	if err := s.lockouts.RecordSuccess(ctx, email, ipAddress); err != nil {
		// The login itself succeeded; a failed reset only delays ledger decay
		s.logger.Error("failed to clear lockout ledger", slog.Any("error", err))
	}

	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// failLogin records the failed credential check in the ledger and maps the
// outcome to the error the handler surfaces. user is nil for unknown accounts.
func (s *AuthService) failLogin(ctx context.Context, start time.Time, user *models.User, email, ipAddress, userAgent string) error {
	defer s.timing.WaitFrom(start)

	userID := ""
	if user != nil {
		userID = user.ID
	}

	status, err := s.lockouts.RecordFailure(ctx, email, ipAddress)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if status.Locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "account_locked",
			UserID:        userID,
			Email:         email,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "too_many_failed_attempts",
			LockedUntil:   status.LockedUntil,
		})

		// Alert the real account owner, and only when their own account key
		// locked. An address-only lock does not implicate the account.
		if s.alerts != nil && user != nil && status.AccountKeyLocked {
			go s.sendLockoutAlert(user.Email, *status.LockedUntil)
		}

		return &models.AccountLockedError{LockedUntil: *status.LockedUntil}
	}

	s.logger.Info("login failed: invalid credentials")
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		IPAddress:     ipAddress,
		FailureReason: "invalid_credentials",
	})

	return &models.InvalidCredentialsError{RemainingAttempts: status.RemainingAttempts}
}

func (s *AuthService) sendLockoutAlert(email string, lockedUntil time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.alerts.SendLockoutAlert(ctx, email, lockedUntil); err != nil {
		s.logger.Error("failed to send lockout alert", slog.Any("error", err))
	}
}

// CheckIPLock reports the lock state of the caller's network address. Used by
// the client on page load to restore its countdown without submitting
// credentials.
func (s *AuthService) CheckIPLock(ctx context.Context, ipAddress string) (*models.LockStatus, error) {
	return s.lockouts.IPStatus(ctx, ipAddress)
}

// Register creates a new marketplace account
func (s *AuthService) Register(ctx context.Context, email, password, name, role string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	// Admin accounts are only created via the bootstrap path
	if role != models.RoleBuyer && role != models.RoleArtisan {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	user := &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		Name:              name,
		Role:              role,
		PasswordChangedAt: &now,
	}

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		s.logger.Error("failed to create user", slog.Any("error", err))
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(createdUser)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(createdUser)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(createdUser),
	}, nil
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	revoked, err := s.revokeRepo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("failed to check token revocation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("token refresh blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, models.ErrUnauthorized
	}

	// Invalidate tokens issued before the last password change. JWT
	// timestamps carry second precision, so compare at that granularity to
	// accept tokens minted in the same instant the password was set.
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
			s.logger.Info("token refresh blocked: issued before password change",
				slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
	}

	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newRefreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Logout revokes the current access token
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	expiresAt := claims.ExpiresAt.Time
	err = s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, expiresAt, "logout")
	if err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// validateAccountState checks if user account is in valid state for authentication
func validateAccountState(user *models.User) error {
	switch user.Status {
	case "disabled":
		return models.ErrAccountDisabled
	case "suspended":
		return models.ErrAccountSuspended
	case "active":
		return nil
	default:
		return fmt.Errorf("unknown account status: %s", user.Status)
	}
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}
