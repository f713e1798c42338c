package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository/memory"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/pkg/messaging"
)

type fakeBroker struct {
	mu        sync.Mutex
	published []messaging.Message
	err       error
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Close() error { return nil }

type fakeNotifier struct {
	notified []string
	err      error
}

func (n *fakeNotifier) Wants(eventType string) bool { return event.IsEmergency(eventType) }

func (n *fakeNotifier) Notify(_ context.Context, evt *model.OutboxEvent) error {
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, evt.EventType)
	return nil
}

func newProcessor(t *testing.T, store *memory.Store, broker *fakeBroker, notifier Notifier, attempts int) *OutboxProcessor {
	t.Helper()
	repos := store.Repositories()
	p, err := NewOutboxProcessor(repos.Tx, repos.Outbox, broker, notifier, OutboxProcessorConfig{
		Channel:       "telemed.events",
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Minute,
		Retention:     time.Hour,
	}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	return p
}

func emit(t *testing.T, store *memory.Store, eventType string) {
	t.Helper()
	require.NoError(t, event.NewService(store.Repositories().Outbox).Emit(context.Background(), eventType,
		map[string]string{"id": "x"}))
}

func TestOutboxProcessorDelivers(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{}
	notifier := &fakeNotifier{}
	p := newProcessor(t, store, broker, notifier, 3)

	emit(t, store, event.ConsultationCreated)
	emit(t, store, event.EmergencyCreated)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.published, 2)
	assert.Equal(t, event.ConsultationCreated, broker.published[0].Type)
	assert.JSONEq(t, `{"id":"x"}`, string(broker.published[0].Payload))
	assert.Equal(t, []string{event.EmergencyCreated}, notifier.notified)

	for _, evt := range store.OutboxEvents() {
		assert.Equal(t, model.OutboxStatusProcessed, evt.Status)
		assert.NotNil(t, evt.ProcessedAt)
	}

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "processed events are not delivered twice")
}

func TestOutboxProcessorSchedulesRetry(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{err: errors.New("redis down")}
	p := newProcessor(t, store, broker, nil, 3)
	now := time.Now()
	p.now = func() time.Time { return now }

	emit(t, store, event.MessageSent)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].RetryAt)
	assert.WithinDuration(t, now.Add(time.Minute), *events[0].RetryAt, time.Millisecond)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Contains(t, *events[0].ErrorMessage, "redis down")

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "events are not picked up before retry_at")
}

func TestOutboxProcessorFailsAfterLastAttempt(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{err: errors.New("smtp refused")}
	p := newProcessor(t, store, &fakeBroker{}, notifier, 1)

	emit(t, store, event.EmergencyEscalated)

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	assert.Contains(t, *events[0].ErrorMessage, "smtp refused")
}

func TestOutboxProcessorPurgesProcessed(t *testing.T) {
	store := memory.NewStore()
	p := newProcessor(t, store, &fakeBroker{}, nil, 3)

	emit(t, store, event.ConsultationAccepted)
	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.purge(context.Background()))
	assert.Len(t, store.OutboxEvents(), 1, "recent rows survive the retention window")

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, p.purge(context.Background()))
	assert.Empty(t, store.OutboxEvents())
}

func TestOutboxProcessorBackoff(t *testing.T) {
	p := &OutboxProcessor{config: OutboxProcessorConfig{RetryDelay: time.Second}}
	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, p.backoff(10), p.backoff(50))
}

func TestOutboxProcessorConfigValidation(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	_, err := NewOutboxProcessor(repos.Tx, repos.Outbox, &fakeBroker{}, nil, OutboxProcessorConfig{
		Channel: "c", BatchSize: 0, PollInterval: time.Second, RetryAttempts: 1, RetryDelay: time.Second,
	}, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
}
