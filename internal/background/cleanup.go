package background

import (
	"context"
	"log/slog"
	"time"
)

// LedgerPruner removes stale lockout records past the retention window
type LedgerPruner interface {
	PruneStale(ctx context.Context) (int64, error)
}

// TokenCleaner removes revoked tokens whose expiry has passed
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// CleanupManager periodically prunes stale lockout records and expired
// revoked tokens. Records with a live lock are never touched.
type CleanupManager struct {
	pruner   LedgerPruner
	cleaner  TokenCleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	pruner LedgerPruner,
	cleaner TokenCleaner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		pruner:   pruner,
		cleaner:  cleaner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.pruner != nil {
		pruned, err := cm.pruner.PruneStale(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to prune stale lockout records", slog.Any("error", err))
		} else if pruned > 0 {
			cm.logger.Info("stale lockout records pruned", slog.Int64("rows_deleted", pruned))
		}
	}

	if cm.cleaner != nil {
		deleted, err := cm.cleaner.CleanupExpiredTokens(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to cleanup expired tokens", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("expired token cleanup completed", slog.Int64("rows_deleted", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
