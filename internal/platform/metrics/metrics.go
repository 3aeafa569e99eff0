// Package metrics exports worker pool and queue observations to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/task"
)

const namespace = "filepipe"

// depthTimeout bounds a queue depth lookup during a scrape.
const depthTimeout = 2 * time.Second

// JobMetrics implements task.Metrics with Prometheus collectors.
type JobMetrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
}

// NewJobMetrics creates the job collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewJobMetrics(reg prometheus.Registerer) (*JobMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &JobMetrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs processed by the worker pool, by type and final status.",
		}, []string{"type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent processing a job.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being processed.",
		}, []string{"type"}),
	}

	var err error
	if m.processed, err = register(reg, m.processed); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// JobStarted implements task.Metrics.
func (m *JobMetrics) JobStarted(jobType domain.JobType) {
	m.inFlight.WithLabelValues(string(jobType)).Inc()
}

// JobFinished implements task.Metrics.
func (m *JobMetrics) JobFinished(jobType domain.JobType, status domain.JobStatus, elapsed time.Duration) {
	m.inFlight.WithLabelValues(string(jobType)).Dec()
	m.processed.WithLabelValues(string(jobType), string(status)).Inc()
	m.duration.WithLabelValues(string(jobType)).Observe(elapsed.Seconds())
}

// DepthReader reports the number of jobs waiting in a queue.
type DepthReader interface {
	Depth(ctx context.Context) (int64, error)
}

// RegisterQueueDepth exports the queue's waiting job count, read at scrape time.
func RegisterQueueDepth(reg prometheus.Registerer, queue DepthReader, logger *slog.Logger) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting in the queue.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), depthTimeout)
		defer cancel()
		depth, err := queue.Depth(ctx)
		if err != nil {
			logger.Warn("failed to read queue depth", "error", err)
			return 0
		}
		return float64(depth)
	})
	if err := reg.Register(gauge); err != nil {
		return fmt.Errorf("register queue depth: %w", err)
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Ensure JobMetrics implements task.Metrics
var _ task.Metrics = (*JobMetrics)(nil)
