package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/platform/logger"
)

func receive(t *testing.T, sub *Subscription) *JobEvent {
	t.Helper()
	select {
	case event := <-sub.C:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case event := <-sub.C:
		t.Fatalf("unexpected event for job %s", event.JobID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemoryEventEmitter(t *testing.T) {
	log := logger.Discard()

	t.Run("emit event with no handlers or subscribers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		err := emitter.EmitEvent(context.Background(), NewCompletedEvent(uuid.New(), nil))
		assert.NoError(t, err)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)

		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event := NewCompletedEvent(uuid.New(), nil)
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)

		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		id := uuid.New()
		sub, err := emitter.Subscribe(context.Background(), id)
		require.NoError(t, err)
		defer sub.Close()

		err = emitter.EmitEvent(context.Background(), NewCompletedEvent(id, nil))
		assert.EqualError(t, err, "handler error")

		// Both handlers and the subscriber still received the event
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
		assert.Equal(t, id, receive(t, sub).JobID)
	})
}

func TestInMemoryEventEmitter_SubscriptionsAreFilteredByJob(t *testing.T) {
	emitter := NewInMemoryEventEmitter(logger.Discard())
	ctx := context.Background()

	jobA, jobB := uuid.New(), uuid.New()
	subA, err := emitter.Subscribe(ctx, jobA)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := emitter.Subscribe(ctx, jobB)
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, emitter.EmitEvent(ctx, NewFailedEvent(jobB, errors.New("nope"))))

	event := receive(t, subB)
	assert.Equal(t, jobB, event.JobID)
	assert.Equal(t, "nope", event.Error)
	assertNoEvent(t, subA)
}

func TestInMemoryEventEmitter_MultipleSubscribersSameJob(t *testing.T) {
	emitter := NewInMemoryEventEmitter(logger.Discard())
	ctx := context.Background()
	id := uuid.New()

	first, err := emitter.Subscribe(ctx, id)
	require.NoError(t, err)
	second, err := emitter.Subscribe(ctx, id)
	require.NoError(t, err)

	require.NoError(t, emitter.EmitEvent(ctx, NewCompletedEvent(id, nil)))
	assert.Equal(t, id, receive(t, first).JobID)
	assert.Equal(t, id, receive(t, second).JobID)

	first.Close()
	first.Close()
	require.NoError(t, emitter.EmitEvent(ctx, NewProcessingEvent(id)))
	assert.Equal(t, id, receive(t, second).JobID)
	assertNoEvent(t, first)

	second.Close()
	emitter.mu.RLock()
	defer emitter.mu.RUnlock()
	assert.NotContains(t, emitter.subs, id, "closing the last subscription forgets the job")
}

func TestInMemoryEventEmitter_ClosedSubscriptionReceivesNothing(t *testing.T) {
	emitter := NewInMemoryEventEmitter(logger.Discard())
	ctx := context.Background()
	id := uuid.New()

	sub, err := emitter.Subscribe(ctx, id)
	require.NoError(t, err)
	sub.Close()

	require.NoError(t, emitter.EmitEvent(ctx, NewCompletedEvent(id, nil)))
	assertNoEvent(t, sub)
}

func TestInMemoryEventEmitter_SubscribeCanceledContext(t *testing.T) {
	emitter := NewInMemoryEventEmitter(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := emitter.Subscribe(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}
