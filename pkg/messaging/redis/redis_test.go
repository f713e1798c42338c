package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jwalitptl/telemed-api/pkg/circuitbreaker"
	"github.com/jwalitptl/telemed-api/pkg/messaging"
)

type fakeClient struct {
	err       error
	published map[string][][]byte
	calls     int
}

func (f *fakeClient) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.calls++
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) Close() error { return nil }

func TestPublishEncodesMessage(t *testing.T) {
	client := &fakeClient{}
	b := NewBroker(client, zap.NewNop())

	msg := messaging.Message{ID: "1", Type: "emergency.created", Payload: json.RawMessage(`{"level":"critical"}`)}
	require.NoError(t, b.Publish(context.Background(), "telemed.events", msg))

	require.Len(t, client.published["telemed.events"], 1)
	var got messaging.Message
	require.NoError(t, json.Unmarshal(client.published["telemed.events"][0], &got))
	assert.Equal(t, "emergency.created", got.Type)
	assert.JSONEq(t, `{"level":"critical"}`, string(got.Payload))
}

func TestPublishStopsCallingWhenBreakerOpens(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	b := NewBroker(client, zap.NewNop())

	for i := 0; i < 5; i++ {
		assert.Error(t, b.Publish(context.Background(), "c", "x"))
	}
	assert.Equal(t, 5, client.calls)

	err := b.Publish(context.Background(), "c", "x")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, client.calls)
}
