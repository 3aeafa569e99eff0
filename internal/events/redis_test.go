package events

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
)

func newTestRedisBus(t *testing.T, addr string) *RedisEventBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := NewRedisEventBus(context.Background(), client, "fileQueue:events", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisEventBus_CrossProcessDelivery(t *testing.T) {
	srv := miniredis.RunT(t)
	producerSide := newTestRedisBus(t, srv.Addr())
	workerSide := newTestRedisBus(t, srv.Addr())
	ctx := context.Background()

	id := uuid.New()
	sub, err := producerSide.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Close()

	handler := &MockEventHandler{}
	workerSide.RegisterHandler(handler)

	require.NoError(t, workerSide.EmitEvent(ctx, NewCompletedEvent(id, []byte(`[{"url":"u"}]`))))

	event := receive(t, sub)
	assert.Equal(t, id, event.JobID)
	assert.Equal(t, domain.JobStatusCompleted, event.Status)
	assert.JSONEq(t, `[{"url":"u"}]`, string(event.Result))

	// handlers only run in the emitting process
	assert.Equal(t, 1, handler.HandledCount)
}

func TestRedisEventBus_IgnoresOtherJobs(t *testing.T) {
	srv := miniredis.RunT(t)
	bus := newTestRedisBus(t, srv.Addr())
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, uuid.New())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.EmitEvent(ctx, NewFailedEvent(uuid.New(), errors.New("x"))))
	assertNoEvent(t, sub)
}

func TestRedisEventBus_PublishFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	bus := newTestRedisBus(t, srv.Addr())

	srv.SetError("server unavailable")
	defer srv.SetError("")

	err := bus.EmitEvent(context.Background(), NewCompletedEvent(uuid.New(), nil))
	assert.Error(t, err)
}
