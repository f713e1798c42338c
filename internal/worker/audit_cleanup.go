package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jwalitptl/telemed-api/pkg/metrics"
)

// AuditPurger deletes audit rows older than a retention window.
type AuditPurger interface {
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditCleanupWorker enforces audit log retention. Escalation logs are never purged.
type AuditCleanupWorker struct {
	purger          AuditPurger
	retentionDays   int
	cleanupInterval time.Duration
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

func NewAuditCleanupWorker(purger AuditPurger, retentionDays int, cleanupInterval time.Duration, logger *zap.Logger, m *metrics.Metrics) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		purger:          purger,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          logger.Named("audit_cleanup"),
		metrics:         m,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 || w.cleanupInterval <= 0 {
		w.logger.Info("audit cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("error cleaning up audit logs", zap.Error(err))
			}
		}
	}
}

// Cleanup runs one retention pass and returns the number of deleted rows.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	retention := time.Duration(w.retentionDays) * 24 * time.Hour

	rows, err := w.purger.DeleteOlderThan(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	w.metrics.ObserveAuditDeleted(rows)
	w.logger.Info("cleaned up audit logs",
		zap.Int64("rows", rows),
		zap.Int("retention_days", w.retentionDays))
	return rows, nil
}
