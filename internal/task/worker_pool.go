package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/events"
	"github.com/phrazzld/filepipe/internal/platform/logger"
)

// DefaultWorkerCount is the number of jobs a pool processes concurrently
// unless configured otherwise.
const DefaultWorkerCount = 5

// Metrics receives job lifecycle observations from the worker pool.
type Metrics interface {
	JobStarted(jobType domain.JobType)
	JobFinished(jobType domain.JobType, status domain.JobStatus, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) JobStarted(domain.JobType)                                   {}
func (nopMetrics) JobFinished(domain.JobType, domain.JobStatus, time.Duration) {}

// WorkerPool manages a pool of worker goroutines that process jobs from a
// queue. Each worker receives a new job only while idle, so no more than
// workerCount jobs are in flight at once and the rest wait in the queue.
type WorkerPool struct {
	// queue provides the jobs to be processed
	queue QueueReader

	// processor performs the work each job describes
	processor JobProcessor

	// emitter reports job status changes
	emitter events.EventEmitter

	// metrics observes job lifecycles
	metrics Metrics

	// workerCount is the number of concurrent workers to start
	workerCount int

	// retryDelay is how long a worker backs off after a receive error
	retryDelay time.Duration

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	// logger for structured logging
	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many jobs are processed concurrently
	// If zero or negative, defaults to DefaultWorkerCount
	WorkerCount int

	// RetryDelay is the pause after a failed receive. Defaults to one second.
	RetryDelay time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: DefaultWorkerCount,
		RetryDelay:  time.Second,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	queue QueueReader,
	processor JobProcessor,
	emitter events.EventEmitter,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", DefaultWorkerCount)
	}
	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:       queue,
		processor:   processor,
		emitter:     emitter,
		metrics:     nopMetrics{},
		workerCount: workerCount,
		retryDelay:  retryDelay,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// SetMetrics replaces the metrics sink. Call before Start.
func (p *WorkerPool) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	p.metrics = m
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop tells the workers to stop receiving and waits for in-flight jobs to
// finish. Jobs are not interrupted.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Run starts the pool and blocks until ctx is done, then stops it.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		d, err := p.queue.Receive(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				p.logger.Debug("stopping worker", "worker_id", id)
				return
			}

			p.logger.Error("failed to receive job", "worker_id", id, "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}

		p.processDelivery(d, id)
	}
}

// processDelivery handles a single delivery from decode to acknowledgement.
// It runs on a background context so shutdown never cuts a job short.
func (p *WorkerPool) processDelivery(d *Delivery, workerID int) {
	ctx := context.Background()

	job, err := DecodeJob(d.Body)
	if err != nil {
		p.logger.Error("discarding undecodable job",
			"worker_id", workerID,
			"error", err,
			"body_size", len(d.Body))
		p.ack(ctx, d, p.logger)
		return
	}

	log := p.logger.With(
		"job_id", job.ID,
		"job_type", job.Type,
		"provider", job.Provider,
		"worker_id", workerID,
	)
	ctx = logger.WithLogger(ctx, log)

	if err := p.emitter.EmitEvent(ctx, events.NewProcessingEvent(job.ID)); err != nil {
		log.Warn("failed to report job as processing", "error", err)
	}

	log.Info("processing job", "queued_for", d.ReceivedAt.Sub(job.CreatedAt))
	p.metrics.JobStarted(job.Type)
	start := time.Now()

	result, err := p.process(ctx, job)

	var event *events.JobEvent
	if err != nil {
		log.Error("job failed", "error", err, "duration", time.Since(start))
		event = events.NewFailedEvent(job.ID, err)
	} else {
		log.Info("job completed", "duration", time.Since(start))
		event = events.NewCompletedEvent(job.ID, result)
	}
	p.metrics.JobFinished(job.Type, event.Status, time.Since(start))

	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to report job outcome", "status", event.Status, "error", err)
	}

	p.ack(ctx, d, log)
}

// process runs the processor, turning a panic into a job failure.
func (p *WorkerPool) process(ctx context.Context, job *Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
	}()
	return p.processor.Process(ctx, job)
}

func (p *WorkerPool) ack(ctx context.Context, d *Delivery, log *slog.Logger) {
	if err := p.queue.Ack(ctx, d); err != nil {
		log.Error("failed to acknowledge job", "error", err)
	}
}
