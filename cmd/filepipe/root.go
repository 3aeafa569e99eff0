package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/phrazzld/filepipe/internal/config"
	"github.com/phrazzld/filepipe/internal/platform/logger"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "filepipe",
		Short:        "Asynchronous file upload pipeline",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"path to a config file (default ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// load reads the configuration and sets up the process logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}

// commandContext returns the command's context, falling back to Background
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
