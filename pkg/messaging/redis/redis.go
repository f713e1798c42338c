package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jwalitptl/telemed-api/pkg/circuitbreaker"
	"github.com/jwalitptl/telemed-api/pkg/messaging"
)

// Publisher is the part of the redis client the broker uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type RedisBroker struct {
	client Publisher
	ping   func(ctx context.Context) error
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, config Config, logger *zap.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := NewBroker(client, logger)
	b.ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return b, nil
}

// NewBroker wraps an existing client.
func NewBroker(client Publisher, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:                "redis-broker",
			ConsecutiveFailures: 5,
			HalfOpenRequests:    1,
			Timeout:             30 * time.Second,
			OnStateChange: func(name, from, to string) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name), zap.String("from", from), zap.String("to", to))
			},
		}),
		logger: logger,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

// PingContext checks the connection; brokers built over a bare Publisher always report healthy.
func (b *RedisBroker) PingContext(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ messaging.Broker = (*RedisBroker)(nil)
