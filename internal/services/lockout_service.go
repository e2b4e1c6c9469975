package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/craftloom/backend/internal/models"
)

// LockoutRepository defines the ledger storage operations. RecordFailure must be
// atomic: the increment, threshold comparison and deadline stamp happen in one
// storage operation, never as separate read and write calls.
type LockoutRepository interface {
	Get(ctx context.Context, key string) (*models.LockoutRecord, error)
	RecordFailure(ctx context.Context, key string, threshold int, lockFor time.Duration) (*models.LockoutRecord, error)
	Clear(ctx context.Context, key string) error
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutPolicy holds the thresholds and durations for the two identity keys.
type LockoutPolicy struct {
	EmailThreshold int
	EmailDuration  time.Duration
	IPThreshold    int
	IPDuration     time.Duration
	Retention      time.Duration
}

// LockoutService is the lockout ledger: it decides whether a login attempt may
// proceed and maintains the per-key failure state. Login is blocked when either
// the account key or the address key holds a live lock; the surfaced deadline
// is the later of the two.
type LockoutService struct {
	repo   LockoutRepository
	policy LockoutPolicy
	logger *slog.Logger
}

func NewLockoutService(repo LockoutRepository, policy LockoutPolicy, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

func emailKey(email string) string {
	return models.LockoutKeyEmail + strings.ToLower(strings.TrimSpace(email))
}

func ipKey(ip string) string {
	return models.LockoutKeyIP + ip
}

// CheckAttempt decides whether an incoming login attempt is permitted. Called
// before any credential verification. A storage error is returned to the
// caller, which must deny the attempt (fail closed).
func (s *LockoutService) CheckAttempt(ctx context.Context, email, ip string) (*models.LockStatus, error) {
	now := time.Now()

	emailStatus, err := s.keyStatus(ctx, emailKey(email), s.policy.EmailThreshold, now)
	if err != nil {
		return nil, err
	}

	ipStatus, err := s.keyStatus(ctx, ipKey(ip), s.policy.IPThreshold, now)
	if err != nil {
		return nil, err
	}

	return combineStatuses(emailStatus, ipStatus), nil
}

// RecordFailure registers a failed credential check against both identity keys
// and reports the resulting state. When the failure crosses a threshold the
// returned status carries the new lock deadline.
func (s *LockoutService) RecordFailure(ctx context.Context, email, ip string) (*models.LockStatus, error) {
	now := time.Now()

	emailRecord, err := s.repo.RecordFailure(ctx, emailKey(email), s.policy.EmailThreshold, s.policy.EmailDuration)
	if err != nil {
		return nil, err
	}

	ipRecord, err := s.repo.RecordFailure(ctx, ipKey(ip), s.policy.IPThreshold, s.policy.IPDuration)
	if err != nil {
		return nil, err
	}

	status := combineStatuses(
		statusFromRecord(emailRecord, s.policy.EmailThreshold, now),
		statusFromRecord(ipRecord, s.policy.IPThreshold, now),
	)

	if status.Locked {
		s.logger.Warn("lockout issued",
			slog.Int("failed_attempts", emailRecord.FailedAttempts),
			slog.String("ip_address", ip),
			slog.Time("locked_until", *status.LockedUntil))
	}

	return status, nil
}

// RecordSuccess clears both identity keys after a successful authentication.
func (s *LockoutService) RecordSuccess(ctx context.Context, email, ip string) error {
	if err := s.repo.Clear(ctx, emailKey(email)); err != nil {
		return err
	}
	return s.repo.Clear(ctx, ipKey(ip))
}

// IPStatus is the read-only probe behind the check-ip-lock endpoint, so a
// returning client can restore its countdown without submitting credentials.
func (s *LockoutService) IPStatus(ctx context.Context, ip string) (*models.LockStatus, error) {
	return s.keyStatus(ctx, ipKey(ip), s.policy.IPThreshold, time.Now())
}

// PruneStale deletes ledger rows untouched for the retention window.
func (s *LockoutService) PruneStale(ctx context.Context) (int64, error) {
	return s.repo.DeleteStale(ctx, time.Now().Add(-s.policy.Retention))
}

func (s *LockoutService) keyStatus(ctx context.Context, key string, threshold int, now time.Time) (*models.LockStatus, error) {
	record, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return statusFromRecord(record, threshold, now), nil
}

// statusFromRecord evaluates a ledger record at an instant. An expired lock
// means the record is treated as fresh (lazy expiry): the full attempt budget
// is available again.
func statusFromRecord(record *models.LockoutRecord, threshold int, now time.Time) *models.LockStatus {
	if record == nil {
		return &models.LockStatus{RemainingAttempts: threshold}
	}

	if record.Locked(now) {
		return &models.LockStatus{Locked: true, LockedUntil: record.LockedUntil}
	}

	if record.LockedUntil != nil {
		// Lock deadline has passed; the count restarts on the next failure.
		return &models.LockStatus{RemainingAttempts: threshold}
	}

	remaining := threshold - record.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return &models.LockStatus{RemainingAttempts: remaining}
}

// combineStatuses applies the composition rule: locked if either key is locked,
// surfacing the later deadline. When unlocked, the account key's attempt budget
// is the one reported to the user.
func combineStatuses(emailStatus, ipStatus *models.LockStatus) *models.LockStatus {
	if emailStatus.Locked || ipStatus.Locked {
		deadline := emailStatus.LockedUntil
		if deadline == nil || (ipStatus.LockedUntil != nil && ipStatus.LockedUntil.After(*deadline)) {
			deadline = ipStatus.LockedUntil
		}
		return &models.LockStatus{
			Locked:           true,
			AccountKeyLocked: emailStatus.Locked,
			LockedUntil:      deadline,
		}
	}

	return &models.LockStatus{RemainingAttempts: emailStatus.RemainingAttempts}
}
