package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"

	"github.com/phrazzld/filepipe/internal/api"
	apimw "github.com/phrazzld/filepipe/internal/api/middleware"
	"github.com/phrazzld/filepipe/internal/config"
	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/events"
	"github.com/phrazzld/filepipe/internal/platform/broker"
	"github.com/phrazzld/filepipe/internal/platform/metrics"
	"github.com/phrazzld/filepipe/internal/platform/postgres"
	"github.com/phrazzld/filepipe/internal/staging"
	"github.com/phrazzld/filepipe/internal/storage"
	"github.com/phrazzld/filepipe/internal/store"
	"github.com/phrazzld/filepipe/internal/task"
)

// application holds the shared dependencies of every command and releases
// them on close.
type application struct {
	config *config.Config
	logger *slog.Logger

	redis *redis.Client
	db    *sql.DB

	stager    *staging.Stager
	providers *storage.Registry
	queue     task.Queue
	bus       events.Bus
	jobs      store.JobStore
	registry  *prometheus.Registry

	// recover moves jobs that dead consumers left unacknowledged back to the
	// wait list. Nil for the memory backend.
	recover func(ctx context.Context) (int, error)

	closers []func() error
}

// newApplication connects the backends selected by cfg and builds the
// components shared by the server and the worker.
func newApplication(ctx context.Context, cfg *config.Config, consumer string, logger *slog.Logger) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := app.init(ctx, consumer); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx context.Context, consumer string) error {
	cfg := app.config

	app.stager = staging.NewStager(cfg.Storage.TempDir, app.logger)

	providers, err := app.buildProviders(ctx)
	if err != nil {
		return err
	}
	app.providers = providers

	switch cfg.Queue.Backend {
	case "redis":
		client, err := broker.Connect(ctx, cfg.Redis, cfg.Queue.WorkerCount)
		if err != nil {
			return err
		}
		app.redis = client
		app.closers = append(app.closers, client.Close)

		queue := broker.NewQueue(client, cfg.Queue.Name, consumer, app.logger)
		app.queue = queue
		app.recover = queue.Recover
		app.closers = append(app.closers, queue.Close)

		bus, err := events.NewRedisEventBus(ctx, client, broker.EventChannel(cfg.Queue.Name), app.logger)
		if err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
		app.bus = bus
		app.closers = append(app.closers, bus.Close)

	case "memory":
		queue := task.NewMemoryQueue(app.logger)
		app.queue = queue
		app.closers = append(app.closers, queue.Close)
		app.bus = events.NewInMemoryEventEmitter(app.logger)

	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}

	switch {
	case cfg.Database.URL != "":
		db, err := postgres.Open(ctx, cfg.Database.URL, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		app.closers = append(app.closers, db.Close)
		app.jobs = postgres.NewPostgresJobStore(db)
	case app.redis != nil:
		app.jobs = broker.NewJobStore(app.redis, cfg.Queue.Name, cfg.Queue.ResultTTL)
	default:
		app.jobs = store.NewMemoryJobStore()
	}

	// job records must be written before any waiter observes the event
	app.bus.RegisterHandler(task.NewJobStatusRecorder(app.jobs, app.logger))

	if err := app.registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := metrics.RegisterQueueDepth(app.registry, app.queue, app.logger); err != nil {
		return err
	}

	app.logger.Info("application initialized",
		"queue_backend", cfg.Queue.Backend,
		"queue", cfg.Queue.Name,
		"default_provider", providers.Default(),
		"providers", providers.Kinds(),
		"postgres", app.db != nil)
	return nil
}

func (app *application) buildProviders(ctx context.Context) (*storage.Registry, error) {
	cfg := app.config.Storage

	providers := []storage.Provider{
		storage.NewLocalProvider(storage.LocalConfig{
			Root:          cfg.Local.Root,
			PublicBaseURL: cfg.Local.PublicBaseURL,
			CompressWidth: cfg.CompressWidth,
		}, app.logger),
	}

	if cfg.Object.Enabled() {
		client, err := storage.NewObjectClient(ctx, cfg.Object.Backend, storage.ObjectStoreConfig{
			Bucket:        cfg.Object.Bucket,
			Region:        cfg.Object.Region,
			Endpoint:      cfg.Object.Endpoint,
			AccessKey:     cfg.Object.AccessKey,
			SecretKey:     cfg.Object.SecretKey,
			UseSSL:        cfg.Object.UseSSL,
			PublicBaseURL: cfg.Object.PublicBaseURL,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
		providers = append(providers, storage.NewObjectStoreProvider(client, app.logger))
	}

	registry, err := storage.NewRegistry(domain.ProviderKind(cfg.DefaultProvider), providers...)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}
	return registry, nil
}

func (app *application) producer() *task.Producer {
	return task.NewProducer(
		app.stager,
		app.queue,
		app.bus,
		app.jobs,
		app.providers,
		task.ProducerConfig{WaitTimeout: app.config.Queue.WaitTimeout},
		app.logger,
	)
}

func (app *application) workerPool() (*task.WorkerPool, error) {
	jobMetrics, err := metrics.NewJobMetrics(app.registry)
	if err != nil {
		return nil, err
	}

	pool := task.NewWorkerPool(
		app.queue,
		task.NewProcessor(app.providers, app.stager, app.logger),
		app.bus,
		task.WorkerPoolConfig{WorkerCount: app.config.Queue.WorkerCount},
		app.logger,
	)
	pool.SetMetrics(jobMetrics)
	return pool, nil
}

// recoverJobs claims this process's consumer name and requeues deliveries
// that crashed workers never acknowledged.
func (app *application) recoverJobs(ctx context.Context) error {
	if app.recover == nil {
		return nil
	}
	n, err := app.recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover unacknowledged jobs: %w", err)
	}
	if n > 0 {
		app.logger.Warn("requeued unacknowledged jobs", "count", n)
	}
	return nil
}

func (app *application) router() http.Handler {
	cfg := api.RouterConfig{
		Files:   api.NewFileHandler(app.producer(), app.config.Server.MaxUploadBytes, app.logger),
		Metrics: metrics.Handler(app.registry),
		Health:  app.healthChecks(),
		Logger:  app.logger,
	}
	if app.config.Auth.JWTSecret != "" {
		cfg.Auth = apimw.NewAuthMiddleware(app.config.Auth.JWTSecret)
	}
	return api.NewRouter(cfg)
}

func (app *application) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"queue": func(ctx context.Context) error {
			_, err := app.queue.Depth(ctx)
			return err
		},
	}
	if app.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}
	}
	if app.db != nil {
		checks["database"] = app.db.PingContext
	}
	return checks
}

// close releases resources in reverse order of acquisition.
func (app *application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			app.logger.Warn("failed to release resource", "error", err)
		}
	}
	app.closers = nil
}

// defaultConsumer names this process on the shared queue. The name is unique
// per process; jobs a dead process left unacknowledged are requeued by the
// next worker to start once its lease lapses.
func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + ksuid.New().String()
}
