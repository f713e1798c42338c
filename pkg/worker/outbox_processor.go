package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/pkg/messaging"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
)

// Notifier gets a second delivery attempt channel for selected events, e.g. e-mail.
type Notifier interface {
	Wants(eventType string) bool
	Notify(ctx context.Context, event *model.OutboxEvent) error
}

type OutboxProcessorConfig struct {
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Processed rows older than Retention are purged; zero keeps them.
	Retention time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.Channel == "":
		return errors.New("outbox channel is required")
	case c.BatchSize <= 0:
		return errors.New("outbox batch size must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("outbox poll interval must be greater than 0")
	case c.RetryAttempts <= 0:
		return errors.New("outbox retry attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return errors.New("outbox retry delay must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays committed outbox rows to the broker and the notifier.
// Failed deliveries are retried with exponential backoff until RetryAttempts is used up.
type OutboxProcessor struct {
	txm      repository.TxManager
	repo     repository.OutboxRepository
	broker   messaging.Broker
	notifier Notifier
	config   OutboxProcessorConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewOutboxProcessor builds a processor; notifier and m may be nil.
func NewOutboxProcessor(
	txm repository.TxManager,
	repo repository.OutboxRepository,
	broker messaging.Broker,
	notifier Notifier,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &OutboxProcessor{
		txm:      txm,
		repo:     repo,
		broker:   broker,
		notifier: notifier,
		config:   config,
		logger:   logger.Named("outbox"),
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor",
		zap.String("channel", p.config.Channel),
		zap.Int("batch_size", p.config.BatchSize))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to process outbox batch", zap.Error(err))
			}
			if err := p.purge(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to purge processed events", zap.Error(err))
			}
		}
	}
}

// ProcessBatch delivers up to BatchSize due events and returns how many were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	start := p.now()
	defer func() { p.metrics.ObserveOutboxBatch(p.now().Sub(start)) }()

	delivered := 0
	err := p.txm.WithinTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, evt := range events {
			if err := p.deliver(ctx, evt); err != nil {
				if err := p.fail(ctx, evt, err); err != nil {
					return err
				}
				continue
			}
			if err := p.repo.MarkProcessed(ctx, evt.ID); err != nil {
				return fmt.Errorf("failed to mark event %s processed: %w", evt.ID, err)
			}
			p.metrics.ObserveOutboxProcessed()
			delivered++
		}
		return nil
	})
	return delivered, err
}

func (p *OutboxProcessor) deliver(ctx context.Context, evt *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:         evt.ID.String(),
		Type:       evt.EventType,
		Payload:    evt.Payload,
		OccurredAt: evt.CreatedAt,
	}
	if err := p.broker.Publish(ctx, p.config.Channel, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if p.notifier != nil && p.notifier.Wants(evt.EventType) {
		if err := p.notifier.Notify(ctx, evt); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	return nil
}

// fail schedules a retry or, once attempts are exhausted, parks the event as failed.
func (p *OutboxProcessor) fail(ctx context.Context, evt *model.OutboxEvent, cause error) error {
	log := p.logger.With(
		zap.String("event_id", evt.ID.String()),
		zap.String("event_type", evt.EventType),
		zap.Int("attempt", evt.RetryCount+1),
		zap.Error(cause),
	)

	if evt.RetryCount+1 >= p.config.RetryAttempts {
		log.Error("outbox event failed permanently")
		p.metrics.ObserveOutboxFailed()
		if err := p.repo.MarkFailed(ctx, evt.ID, cause.Error()); err != nil {
			return fmt.Errorf("failed to mark event %s failed: %w", evt.ID, err)
		}
		return nil
	}

	retryAt := p.now().Add(p.backoff(evt.RetryCount))
	log.Warn("outbox event delivery failed, will retry", zap.Time("retry_at", retryAt))
	p.metrics.ObserveOutboxRetry(evt.EventType)
	if err := p.repo.MarkRetry(ctx, evt.ID, cause.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to schedule retry for event %s: %w", evt.ID, err)
	}
	return nil
}

func (p *OutboxProcessor) backoff(retries int) time.Duration {
	const maxShift = 10
	if retries > maxShift {
		retries = maxShift
	}
	return p.config.RetryDelay << uint(retries)
}

func (p *OutboxProcessor) purge(ctx context.Context) error {
	if p.config.Retention <= 0 {
		return nil
	}
	n, err := p.repo.DeleteProcessedBefore(ctx, p.now().Add(-p.config.Retention))
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("purged processed outbox events", zap.Int64("count", n))
	}
	return nil
}
