package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus carries job events between processes over a Redis pub/sub
// channel. Each process holds one channel subscription and fans received
// events out to its local per-job subscribers.
type RedisEventBus struct {
	client  redis.UniversalClient
	channel string
	local   *InMemoryEventEmitter
	pubsub  *redis.PubSub
	done    chan struct{}
	logger  *slog.Logger
}

// NewRedisEventBus subscribes to channel and returns once Redis has
// confirmed the subscription.
func NewRedisEventBus(ctx context.Context, client redis.UniversalClient, channel string, logger *slog.Logger) (*RedisEventBus, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b := &RedisEventBus{
		client:  client,
		channel: channel,
		local:   NewInMemoryEventEmitter(logger),
		pubsub:  pubsub,
		done:    make(chan struct{}),
		logger:  logger.With("component", "redis_event_bus", "channel", channel),
	}
	go b.listen()

	b.logger.Info("subscribed to job events")
	return b, nil
}

func (b *RedisEventBus) listen() {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		var event JobEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Warn("discarding undecodable event", "error", err)
			continue
		}
		b.local.Deliver(&event)
	}
}

// RegisterHandler adds a handler that runs in this process for every event
// it emits.
func (b *RedisEventBus) RegisterHandler(handler EventHandler) {
	b.local.RegisterHandler(handler)
}

// EmitEvent runs the local handlers and publishes the event to every
// process listening on the channel, including this one.
func (b *RedisEventBus) EmitEvent(ctx context.Context, event *JobEvent) error {
	handlerErr := b.local.runHandlers(ctx, event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event for job %s: %w", event.JobID, err)
	}

	return handlerErr
}

// Subscribe implements Subscriber.
func (b *RedisEventBus) Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error) {
	return b.local.Subscribe(ctx, jobID)
}

// Close ends the channel subscription and waits for the listener to exit.
func (b *RedisEventBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	return err
}
