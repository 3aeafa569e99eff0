package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how many events a slow subscriber may fall behind
// before further events for it are dropped. A job emits at most a couple of
// events, so a small buffer never fills in practice.
const subscriberBuffer = 4

// InMemoryEventEmitter dispatches events to registered handlers and to
// per-job subscribers within a single process.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	subs     map[uuid.UUID]map[uint64]chan *JobEvent
	nextID   uint64
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make([]EventHandler, 0),
		subs:     make(map[uuid.UUID]map[uint64]chan *JobEvent),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive every event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// EmitEvent runs all registered handlers, then delivers the event to the
// subscribers of its job. If any handler returns an error, the event is still
// sent to all other handlers and subscribers, and the first error encountered
// is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	err := e.runHandlers(ctx, event)
	e.Deliver(event)
	return err
}

// runHandlers calls every registered handler and returns the first error.
func (e *InMemoryEventEmitter) runHandlers(ctx context.Context, event *JobEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"job_id", event.JobID,
		"status", event.Status,
		"handler_count", len(handlers))

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"job_id", event.JobID,
				"status", event.Status)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Deliver sends event to the subscribers of its job without running handlers.
// Delivery never blocks; a subscriber whose buffer is full misses the event.
func (e *InMemoryEventEmitter) Deliver(event *JobEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, ch := range e.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			e.logger.Warn("dropping event for slow subscriber",
				"job_id", event.JobID,
				"subscription_id", id,
				"status", event.Status)
		}
	}
}

// Subscribe implements Subscriber.
func (e *InMemoryEventEmitter) Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan *JobEvent, subscriberBuffer)

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.subs[jobID] == nil {
		e.subs[jobID] = make(map[uint64]chan *JobEvent)
	}
	e.subs[jobID][id] = ch
	e.mu.Unlock()

	return &Subscription{
		C:     ch,
		jobID: jobID,
		cancel: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs[jobID], id)
			if len(e.subs[jobID]) == 0 {
				delete(e.subs, jobID)
			}
		},
	}, nil
}
