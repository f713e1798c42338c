package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository/memory"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
)

func TestAuditCleanupRemovesExpiredRows(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	ctx := context.Background()

	for _, age := range []time.Duration{48 * time.Hour, time.Hour} {
		require.NoError(t, repos.Audit.Create(ctx, &model.AuditLog{
			UserID:     uuid.New(),
			Action:     model.AuditActionRead,
			EntityType: "consultation",
			EntityID:   uuid.New(),
			CreatedAt:  time.Now().Add(-age),
		}))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("telemed", reg)
	w := NewAuditCleanupWorker(audit.NewService(repos.Audit), 1, time.Hour, zaptest.NewLogger(t), m)

	rows, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Len(t, store.AuditLogs(), 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditLogsDeleted))
}

type failingPurger struct{}

func (failingPurger) DeleteOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, errors.New("db gone")
}

func TestAuditCleanupWrapsErrors(t *testing.T) {
	w := NewAuditCleanupWorker(failingPurger{}, 30, time.Hour, zaptest.NewLogger(t), nil)
	_, err := w.Cleanup(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

func TestAuditCleanupDisabled(t *testing.T) {
	w := NewAuditCleanupWorker(failingPurger{}, 0, time.Hour, zaptest.NewLogger(t), nil)
	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker did not return")
	}
}
