package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled  = errors.New("account is disabled")
	ErrAccountSuspended = errors.New("account is suspended")
)

// AccountLockedError is returned when the lockout ledger rejects a login attempt.
// Carries the lock deadline so handlers can surface the countdown to the client.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return "account is temporarily locked"
}

// RemainingSeconds returns the whole seconds left on the lock, never negative.
func (e *AccountLockedError) RemainingSeconds() int {
	remaining := time.Until(e.LockedUntil)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// InvalidCredentialsError is returned on a failed credential check that did not
// trigger a lock. RemainingAttempts counts failures left before the next one locks.
type InvalidCredentialsError struct {
	RemainingAttempts int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials (%d attempts remaining)", e.RemainingAttempts)
}
