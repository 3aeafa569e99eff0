package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	var (
		consumer string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the shared job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Queue.Backend != "redis" {
				return fmt.Errorf("worker requires the redis queue backend, got %q", cfg.Queue.Backend)
			}
			if count > 0 {
				cfg.Queue.WorkerCount = count
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, consumer, log)
			if err != nil {
				return err
			}
			defer app.close()

			return app.work(ctx)
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", defaultConsumer(), "name of this consumer on the queue")
	cmd.Flags().IntVar(&count, "count", 0, "number of concurrent workers (overrides queue.worker_count)")
	return cmd
}

// work requeues this consumer's unacknowledged jobs and processes the queue
// until ctx is canceled.
func (app *application) work(ctx context.Context) error {
	if err := app.recoverJobs(ctx); err != nil {
		return err
	}
	pool, err := app.workerPool()
	if err != nil {
		return err
	}

	app.logger.Info("worker started",
		"queue", app.config.Queue.Name,
		"workers", app.config.Queue.WorkerCount)
	err = pool.Run(ctx)
	app.logger.Info("worker stopped")
	return err
}
