package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"

	"github.com/phrazzld/filepipe/internal/task"
)

// defaultBlockTimeout bounds each blocking pop so receivers notice
// cancellation. Redis accepts whole seconds at minimum.
const defaultBlockTimeout = time.Second

// DefaultLeaseTTL is how long a consumer name stays claimed without renewal.
const DefaultLeaseTTL = 30 * time.Second

// ErrConsumerActive is returned when another live handle holds the consumer
// name.
var ErrConsumerActive = errors.New("consumer name is held by another live worker")

var (
	extendLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Queue is a durable job queue on Redis lists. A received job is moved
// atomically into the consumer's active list and stays there until
// acknowledged, so a crashed worker's jobs can be recovered.
//
// A handle that receives first claims its consumer name with a lease key it
// keeps renewing. Active lists whose lease has lapsed belong to dead workers
// and are requeued by Recover.
type Queue struct {
	client       redis.UniversalClient
	name         string
	consumer     string
	waitKey      string
	activeKey    string
	leaseKey     string
	leaseTTL     time.Duration
	token        string
	blockTimeout time.Duration
	closed       atomic.Bool
	logger       *slog.Logger

	mu        sync.Mutex
	claimed   bool
	stopRenew context.CancelFunc
	renewDone chan struct{}
}

// NewQueue creates a queue handle. Two live handles may not share a consumer
// name; the second one fails to receive with ErrConsumerActive.
func NewQueue(client redis.UniversalClient, name, consumer string, logger *slog.Logger) *Queue {
	return &Queue{
		client:       client,
		name:         name,
		consumer:     consumer,
		waitKey:      name + ":wait",
		activeKey:    activeKey(name, consumer),
		leaseKey:     leaseKey(name, consumer),
		leaseTTL:     DefaultLeaseTTL,
		token:        ksuid.New().String(),
		blockTimeout: defaultBlockTimeout,
		logger:       logger.With("component", "redis_queue", "queue", name, "consumer", consumer),
	}
}

func activeKey(name, consumer string) string {
	return name + ":active:" + consumer
}

func leaseKey(name, consumer string) string {
	return name + ":consumer:" + consumer
}

// Publish pushes job onto the wait list.
func (q *Queue) Publish(ctx context.Context, job *task.Job) error {
	if q.closed.Load() {
		return task.ErrQueueClosed
	}
	body, err := job.Encode()
	if err != nil {
		return err
	}
	depth, err := q.client.LPush(ctx, q.waitKey, body).Result()
	if err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"queue_len", depth)
	return nil
}

// Receive blocks until a job can be moved from the wait list to this
// consumer's active list.
func (q *Queue) Receive(ctx context.Context) (*task.Delivery, error) {
	if err := q.Claim(ctx); err != nil {
		return nil, err
	}
	for {
		if q.closed.Load() {
			return nil, task.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := q.client.BLMove(ctx, q.waitKey, q.activeKey, "RIGHT", "LEFT", q.blockTimeout).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to receive job: %w", err)
		}

		return &task.Delivery{Body: []byte(body), ReceivedAt: time.Now()}, nil
	}
}

// Ack removes the delivery from the active list.
func (q *Queue) Ack(ctx context.Context, d *task.Delivery) error {
	removed, err := q.client.LRem(ctx, q.activeKey, 1, d.Body).Result()
	if err != nil {
		return fmt.Errorf("failed to acknowledge job: %w", err)
	}
	if removed == 0 {
		q.logger.Warn("acknowledged job was not in the active list")
	}
	return nil
}

// Depth returns the length of the wait list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.waitKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}

// Claim takes the consumer name for this handle and keeps its lease alive
// until Close. Claiming an already claimed handle is a no-op.
func (q *Queue) Claim(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.claimed {
		return nil
	}
	if q.closed.Load() {
		return task.ErrQueueClosed
	}

	ok, err := q.client.SetNX(ctx, q.leaseKey, q.token, q.leaseTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to claim consumer %s: %w", q.consumer, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsumerActive, q.consumer)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	q.stopRenew = cancel
	q.renewDone = make(chan struct{})
	q.claimed = true
	go q.renewLease(renewCtx, q.renewDone)

	q.logger.Debug("consumer claimed", "lease_ttl", q.leaseTTL)
	return nil
}

func (q *Queue) renewLease(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.leaseTTL / 3)
	defer ticker.Stop()

	ttl := q.leaseTTL.Milliseconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := extendLeaseScript.Run(ctx, q.client, []string{q.leaseKey}, q.token, ttl).Int()
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Warn("failed to renew consumer lease", "error", err)
				}
				continue
			}
			if n == 0 {
				q.logger.Error("consumer lease lost, unacknowledged jobs may be redelivered")
				return
			}
		}
	}
}

// Recover claims this handle's consumer name, then moves unacknowledged jobs
// back to the front of the wait list, oldest first: those left in this
// consumer's active list by a previous run, and those of any consumer whose
// lease has lapsed. Jobs may therefore run more than once.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	if err := q.Claim(ctx); err != nil {
		return 0, err
	}

	recovered, err := q.requeue(ctx, q.activeKey)
	if err != nil {
		return recovered, err
	}

	prefix := activeKey(q.name, "")
	iter := q.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == q.activeKey {
			continue
		}
		consumer := strings.TrimPrefix(key, prefix)
		alive, err := q.client.Exists(ctx, leaseKey(q.name, consumer)).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to check consumer %s: %w", consumer, err)
		}
		if alive > 0 {
			continue
		}
		n, err := q.requeue(ctx, key)
		recovered += n
		if err != nil {
			return recovered, err
		}
		if n > 0 {
			q.logger.Warn("requeued jobs of a dead consumer", "dead_consumer", consumer, "count", n)
		}
	}
	if err := iter.Err(); err != nil {
		return recovered, fmt.Errorf("failed to scan active lists: %w", err)
	}

	if recovered > 0 {
		q.logger.Info("recovered unacknowledged jobs", "count", recovered)
	}
	return recovered, nil
}

func (q *Queue) requeue(ctx context.Context, key string) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, key, q.waitKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to recover active jobs: %w", err)
		}
		n++
	}
}

// Close stops the queue handle. The Redis client stays open; its owner
// closes it.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var err error
	if q.claimed {
		q.stopRenew()
		<-q.renewDone

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rerr := releaseLeaseScript.Run(ctx, q.client, []string{q.leaseKey}, q.token).Err(); rerr != nil {
			err = fmt.Errorf("failed to release consumer %s: %w", q.consumer, rerr)
		}
		q.claimed = false
	}

	q.logger.Info("job queue closed")
	return err
}

// Ensure Queue implements task.Queue
var _ task.Queue = (*Queue)(nil)
