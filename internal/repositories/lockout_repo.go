package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/craftloom/backend/internal/database"
	"github.com/craftloom/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockoutRepository persists the lockout ledger: one row per identity key
// holding the consecutive-failure count and lock deadline.
type LockoutRepository struct {
	pool *pgxpool.Pool
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{pool: db.Pool}
}

// Get returns the ledger record for a key, or nil when the key has never failed.
func (r *LockoutRepository) Get(ctx context.Context, key string) (*models.LockoutRecord, error) {
	query := `
		SELECT key, failed_attempts, locked_until, last_attempt_at
		FROM lockout_records WHERE key = $1
	`

	record := &models.LockoutRecord{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&record.Key, &record.FailedAttempts, &record.LockedUntil, &record.LastAttemptAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return record, nil
}

// RecordFailure registers one failed attempt for a key and applies the lock
// policy in a single statement, so two concurrent failures can never both
// observe a pre-increment count below the threshold. The CASE arms implement
// lazy expiry: an expired lock restarts the count at 1 instead of incrementing,
// and a live lock is never shortened or extended by further failures.
func (r *LockoutRepository) RecordFailure(ctx context.Context, key string, threshold int, lockFor time.Duration) (*models.LockoutRecord, error) {
	query := `
		INSERT INTO lockout_records (key, failed_attempts, locked_until, last_attempt_at)
		VALUES ($1, 1,
			CASE WHEN $2 <= 1 THEN NOW() + make_interval(secs => $3) END,
			NOW())
		ON CONFLICT (key) DO UPDATE SET
			failed_attempts = CASE
				WHEN lockout_records.locked_until IS NOT NULL AND lockout_records.locked_until <= NOW() THEN 1
				ELSE lockout_records.failed_attempts + 1
			END,
			locked_until = CASE
				WHEN lockout_records.locked_until IS NOT NULL AND lockout_records.locked_until > NOW()
					THEN lockout_records.locked_until
				WHEN (CASE
					WHEN lockout_records.locked_until IS NOT NULL AND lockout_records.locked_until <= NOW() THEN 1
					ELSE lockout_records.failed_attempts + 1
				END) >= $2
					THEN NOW() + make_interval(secs => $3)
				ELSE NULL
			END,
			last_attempt_at = NOW()
		RETURNING key, failed_attempts, locked_until, last_attempt_at
	`

	record := &models.LockoutRecord{}
	err := r.pool.QueryRow(ctx, query, key, threshold, lockFor.Seconds()).Scan(
		&record.Key, &record.FailedAttempts, &record.LockedUntil, &record.LastAttemptAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return record, nil
}

// Clear resets a key after a successful authentication. The row is kept; stale
// rows are pruned by the background cleanup.
func (r *LockoutRepository) Clear(ctx context.Context, key string) error {
	query := `
		UPDATE lockout_records
		SET failed_attempts = 0, locked_until = NULL, last_attempt_at = NOW()
		WHERE key = $1
	`

	_, err := r.pool.Exec(ctx, query, key)
	return database.MapPostgresError(err)
}

// DeleteStale removes ledger rows whose last attempt predates the cutoff and
// that hold no live lock.
func (r *LockoutRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM lockout_records
		WHERE last_attempt_at < $1
		  AND (locked_until IS NULL OR locked_until <= NOW())
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
