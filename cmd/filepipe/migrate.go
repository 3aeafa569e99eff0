package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phrazzld/filepipe/internal/platform/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short:     "Apply or inspect job table migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if !slices.Contains(postgres.MigrationCommands, command) {
				return fmt.Errorf("unknown migration command %q", command)
			}

			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required for migrations")
			}

			ctx := commandContext(cmd)
			db, err := postgres.Open(ctx, cfg.Database.URL, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Warn("failed to close database", "error", err)
				}
			}()

			return postgres.Migrate(ctx, db, command, log)
		},
	}
}
