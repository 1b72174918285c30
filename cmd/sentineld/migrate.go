package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sentineld/sentineld/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	// NewClient applies every pending embedded migration before returning,
	// so opening and immediately closing the pool is the whole operation.
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()

	slog.Info("migrations applied")
	return nil
}
