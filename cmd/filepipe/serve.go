package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		embedded bool
		consumer string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the HTTP API. With --workers the process also consumes the job queue; " +
			"the memory queue backend always runs its workers in process.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, consumer, log)
			if err != nil {
				return err
			}
			defer app.close()

			runWorkers := embedded || cfg.Queue.Backend == "memory"
			return app.serve(ctx, runWorkers)
		},
	}
	cmd.Flags().BoolVar(&embedded, "workers", false, "also run the worker pool in this process")
	cmd.Flags().StringVar(&consumer, "consumer", defaultConsumer(), "consumer name used when running embedded workers")
	return cmd
}

// serve runs the HTTP server, and the worker pool when runWorkers is set,
// until ctx is canceled or one of them fails.
func (app *application) serve(ctx context.Context, runWorkers bool) error {
	g, ctx := errgroup.WithContext(ctx)

	if runWorkers {
		if err := app.recoverJobs(ctx); err != nil {
			return err
		}
		pool, err := app.workerPool()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(app.config.Server.Port)),
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", server.Addr, "workers", runWorkers)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.logger.Info("server shutdown completed")
	return err
}
