package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("migrate: NEBULA_DATABASE_URL is required")
			}
			b, err := connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := ensureBot(cmd.Context(), b.store, cfg.Bot); err != nil {
				return err
			}
			logger.Info("Database schema is up to date")
			return nil
		},
	}
}
