package models

import "time"

// Lockout ledger key prefixes. Failures are counted independently per account
// email and per originating network address.
const (
	LockoutKeyEmail = "email:"
	LockoutKeyIP    = "ip:"
)

// LockoutRecord is one row of the lockout ledger: the consecutive-failure count
// and lock deadline for a single identity key.
type LockoutRecord struct {
	Key            string
	FailedAttempts int
	LockedUntil    *time.Time
	LastAttemptAt  time.Time
}

// Locked reports whether the record holds a live lock at the given instant.
// The boundary is exclusive: a deadline equal to now counts as unlocked.
func (r *LockoutRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// LockStatus is the ledger's answer for a login attempt or status probe.
type LockStatus struct {
	Locked            bool
	AccountKeyLocked  bool // the account key itself holds a live lock, not just the address key
	LockedUntil       *time.Time
	RemainingAttempts int // failures left before a lock; meaningful when not locked
}

// RemainingSeconds returns whole seconds until the lock expires, never negative.
func (s *LockStatus) RemainingSeconds(now time.Time) int {
	if s.LockedUntil == nil {
		return 0
	}
	remaining := s.LockedUntil.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}
