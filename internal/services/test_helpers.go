package services

import (
	"context"
	"time"

	"github.com/craftloom/backend/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc    func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

// MockLockoutLedger implements LockoutLedger for testing
type MockLockoutLedger struct {
	CheckAttemptFunc  func(ctx context.Context, email, ip string) (*models.LockStatus, error)
	RecordFailureFunc func(ctx context.Context, email, ip string) (*models.LockStatus, error)
	RecordSuccessFunc func(ctx context.Context, email, ip string) error
	IPStatusFunc      func(ctx context.Context, ip string) (*models.LockStatus, error)
}

func (m *MockLockoutLedger) CheckAttempt(ctx context.Context, email, ip string) (*models.LockStatus, error) {
	if m.CheckAttemptFunc != nil {
		return m.CheckAttemptFunc(ctx, email, ip)
	}
	return &models.LockStatus{RemainingAttempts: 3}, nil
}

func (m *MockLockoutLedger) RecordFailure(ctx context.Context, email, ip string) (*models.LockStatus, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, email, ip)
	}
	return &models.LockStatus{RemainingAttempts: 2}, nil
}

func (m *MockLockoutLedger) RecordSuccess(ctx context.Context, email, ip string) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, email, ip)
	}
	return nil
}

func (m *MockLockoutLedger) IPStatus(ctx context.Context, ip string) (*models.LockStatus, error) {
	if m.IPStatusFunc != nil {
		return m.IPStatusFunc(ctx, ip)
	}
	return &models.LockStatus{}, nil
}

// MockLockoutAlertSender implements LockoutAlertSender for testing
type MockLockoutAlertSender struct {
	SendLockoutAlertFunc func(ctx context.Context, email string, lockedUntil time.Time) error
}

func (m *MockLockoutAlertSender) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, lockedUntil)
	}
	return nil
}
