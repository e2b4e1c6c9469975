package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/craftloom/backend/internal/models"
	"github.com/craftloom/backend/internal/services"
	pkghttp "github.com/craftloom/backend/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthHandler(service AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(service, &pkghttp.IPConfig{})
}

func TestLogin_Success(t *testing.T) {
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			assert.Equal(t, "buyer@example.com", email)
			assert.Equal(t, "correct-password", password)
			return &services.AuthResponse{
				AccessToken:  "access-token",
				RefreshToken: "refresh-token",
				User: &services.UserResponse{
					ID:    "user-1",
					Email: "buyer@example.com",
					Name:  "Test Buyer",
					Role:  models.RoleBuyer,
				},
			}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "buyer@example.com",
		Password: "correct-password",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	var resp LoginResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "access-token", resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "buyer@example.com", resp.User.Email)
}

func TestLogin_NormalizesEmail(t *testing.T) {
	var seenEmail string
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			seenEmail = email
			return nil, &models.InvalidCredentialsError{RemainingAttempts: 2}
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "  Buyer@Example.COM ",
		Password: "whatever",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, "buyer@example.com", seenEmail)
}

func TestLogin_InvalidCredentials_ReportsRemainingAttempts(t *testing.T) {
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, &models.InvalidCredentialsError{RemainingAttempts: 1}
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "buyer@example.com",
		Password: "wrong-password",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	var resp LoginFailedResponse
	AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.Equal(t, "Invalid email or password", resp.Message)
	assert.Equal(t, 1, resp.RemainingAttempts)
}

func TestLogin_Locked_ReturnsCountdownDescriptor(t *testing.T) {
	lockedUntil := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, &models.AccountLockedError{LockedUntil: lockedUntil}
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "buyer@example.com",
		Password: "wrong-password",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	var resp LockedResponse
	AssertJSONResponse(t, w, http.StatusTooManyRequests, &resp)
	assert.True(t, resp.Locked)
	assert.Equal(t, lockedUntil.Format(time.RFC3339), resp.LockUntil)
	assert.Greater(t, resp.RemainingTime, 0)
	assert.LessOrEqual(t, resp.RemainingTime, 300)
	assert.NotEmpty(t, resp.Message)
}

func TestLogin_LockedWithCorrectPassword_StillRejected(t *testing.T) {
	// The service rejects locked accounts before verifying credentials, so
	// the handler never sees a distinction. The lock payload always wins.
	lockedUntil := time.Now().Add(2 * time.Minute)
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, &models.AccountLockedError{LockedUntil: lockedUntil}
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "buyer@example.com",
		Password: "correct-password",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLogin_GenericUnauthorized(t *testing.T) {
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, models.ErrUnauthorized
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "suspended@example.com",
		Password: "whatever",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestLogin_StorageError_Returns500(t *testing.T) {
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, models.ErrInternalServer
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "buyer@example.com",
		Password: "whatever",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestLogin_InvalidBody(t *testing.T) {
	handler := newTestAuthHandler(&MockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	w := httptest.NewRecorder()

	handler.Login(w, req)

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestLogin_MissingFields(t *testing.T) {
	handler := newTestAuthHandler(&MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email: "buyer@example.com",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestCheckIPLock_Unlocked(t *testing.T) {
	mock := &MockAuthService{
		CheckIPLockFunc: func(ctx context.Context, ipAddress string) (*models.LockStatus, error) {
			return &models.LockStatus{Locked: false}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check-ip-lock", nil)
	w := httptest.NewRecorder()

	handler.CheckIPLock(w, req)

	var resp IPLockResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.False(t, resp.Locked)
	assert.Empty(t, resp.LockUntil)
	assert.Zero(t, resp.RemainingTime)
}

func TestCheckIPLock_Locked(t *testing.T) {
	lockedUntil := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	mock := &MockAuthService{
		CheckIPLockFunc: func(ctx context.Context, ipAddress string) (*models.LockStatus, error) {
			return &models.LockStatus{Locked: true, LockedUntil: &lockedUntil}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check-ip-lock", nil)
	w := httptest.NewRecorder()

	handler.CheckIPLock(w, req)

	var resp IPLockResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.Locked)
	assert.Equal(t, lockedUntil.Format(time.RFC3339), resp.LockUntil)
	assert.Greater(t, resp.RemainingTime, 0)
}

func TestCheckIPLock_StorageError(t *testing.T) {
	mock := &MockAuthService{
		CheckIPLockFunc: func(ctx context.Context, ipAddress string) (*models.LockStatus, error) {
			return nil, models.ErrInternalServer
		},
	}
	handler := newTestAuthHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check-ip-lock", nil)
	w := httptest.NewRecorder()

	handler.CheckIPLock(w, req)

	AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestRegister_Success(t *testing.T) {
	mock := &MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name, role string) (*services.AuthResponse, error) {
			assert.Equal(t, models.RoleArtisan, role)
			return &services.AuthResponse{
				AccessToken:  "access-token",
				RefreshToken: "refresh-token",
				User: &services.UserResponse{
					ID:    "user-2",
					Email: email,
					Name:  name,
					Role:  role,
				},
			}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email:    "maker@example.com",
		Password: "Str0ngEnough",
		Name:     "Maker",
		Role:     "artisan",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	var resp LoginResponse
	AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, models.RoleArtisan, resp.User.Role)
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	handler := newTestAuthHandler(&MockAuthService{})

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email:    "maker@example.com",
		Password: "Str0ngEnough",
		Name:     "Maker",
		Role:     "admin",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	mock := &MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name, role string) (*services.AuthResponse, error) {
			return nil, models.ErrConflict
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email:    "maker@example.com",
		Password: "Str0ngEnough",
		Name:     "Maker",
		Role:     "buyer",
	})
	w := httptest.NewRecorder()

	handler.Register(w, req)

	AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestRefreshToken_Success(t *testing.T) {
	mock := &MockAuthService{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
			assert.Equal(t, "valid-refresh-token", refreshToken)
			return &services.AuthResponse{
				AccessToken:  "new-access-token",
				RefreshToken: "new-refresh-token",
				User:         &services.UserResponse{ID: "user-1"},
			}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/refresh", RefreshTokenRequest{
		RefreshToken: "valid-refresh-token",
	})
	w := httptest.NewRecorder()

	handler.RefreshToken(w, req)

	var resp LoginResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "new-access-token", resp.Token)
}

func TestRefreshToken_Invalid(t *testing.T) {
	mock := &MockAuthService{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
			return nil, models.ErrUnauthorized
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/refresh", RefreshTokenRequest{
		RefreshToken: "bogus",
	})
	w := httptest.NewRecorder()

	handler.RefreshToken(w, req)

	AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestLogout_Success(t *testing.T) {
	logoutCalled := false
	mock := &MockAuthService{
		LogoutFunc: func(ctx context.Context, accessToken string) error {
			logoutCalled = true
			assert.Equal(t, "test-access-token", accessToken)
			return nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = WithAuthContext(req, "user-1", "buyer@example.com")
	w := httptest.NewRecorder()

	handler.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, logoutCalled)
}

func TestLogout_MissingAuthContext(t *testing.T) {
	handler := newTestAuthHandler(&MockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	w := httptest.NewRecorder()

	handler.Logout(w, req)

	AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

// The address keyed into the ledger must be the transport address unless the
// request arrived through a configured trusted proxy.
func TestLogin_ForwardingHeadersFromDirectClientIgnored(t *testing.T) {
	var seenIP string
	mock := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			seenIP = ipAddress
			return nil, &models.InvalidCredentialsError{RemainingAttempts: 2}
		},
	}
	handler := newTestAuthHandler(mock)

	req := NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "buyer@example.com",
		"password": "wrong",
	})
	req.RemoteAddr = "198.51.100.7:44321"
	req.Header.Set("X-Real-IP", "203.0.113.99")
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "198.51.100.7", seenIP)
}

func TestCheckIPLock_ForwardingHeadersFromDirectClientIgnored(t *testing.T) {
	var seenIP string
	mock := &MockAuthService{
		CheckIPLockFunc: func(ctx context.Context, ipAddress string) (*models.LockStatus, error) {
			seenIP = ipAddress
			return &models.LockStatus{}, nil
		},
	}
	handler := newTestAuthHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check-ip-lock", nil)
	req.RemoteAddr = "198.51.100.7:44321"
	req.Header.Set("X-Real-IP", "203.0.113.99")
	w := httptest.NewRecorder()

	handler.CheckIPLock(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "198.51.100.7", seenIP)
}
