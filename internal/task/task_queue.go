package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is an unbounded in-process FIFO queue. It serves single-process
// deployments and tests; jobs do not survive a restart.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    [][]byte
	inFlight int
	closed   bool

	// notify wakes one blocked receiver when a job becomes available.
	notify chan struct{}
	done   chan struct{}

	logger *slog.Logger
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("component", "memory_queue"),
	}
}

// Publish appends job to the queue.
func (q *MemoryQueue) Publish(ctx context.Context, job *Job) error {
	body, err := job.Encode()
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.ready = append(q.ready, body)
	depth := len(q.ready)
	q.mu.Unlock()

	q.signal()

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"queue_len", depth)
	return nil
}

// Receive pops the oldest job, blocking while the queue is empty.
func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if len(q.ready) > 0 {
			body := q.ready[0]
			q.ready[0] = nil
			q.ready = q.ready[1:]
			q.inFlight++
			more := len(q.ready) > 0
			q.mu.Unlock()

			// pass the wake-up on so other idle receivers see remaining jobs
			if more {
				q.signal()
			}
			return &Delivery{Body: body, ReceivedAt: time.Now()}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		case <-q.notify:
		}
	}
}

// Ack marks a delivery as finished.
func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	return nil
}

// Depth returns the number of jobs waiting to be received.
func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}

// InFlight returns the number of received but unacknowledged jobs.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Close closes the queue, preventing further publishing and releasing
// blocked receivers. Jobs still waiting are dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
		q.logger.Info("job queue closed", "dropped", len(q.ready))
	}
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
