package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tempohq/tempo/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply job store migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg := storeConfig()
	backends, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer backends.Close() //nolint:errcheck // best-effort on exit

	if err := backends.Jobs.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s store: %w", cfg.Jobs, err)
	}
	logger.Info("migrations applied", slog.String("store", cfg.Jobs))
	return nil
}
