package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sentineld/sentineld/pkg/alertgen"
	"github.com/sentineld/sentineld/pkg/buffer"
	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/correlation"
	"github.com/sentineld/sentineld/pkg/database"
	"github.com/sentineld/sentineld/pkg/detection"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/metrics"
	"github.com/sentineld/sentineld/pkg/rulestore"
	"github.com/sentineld/sentineld/pkg/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection and correlation pipeline",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded, continuing with existing environment", "path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to postgresql, schema up to date")

	buf, err := buffer.New(ctx, cfg.Redis, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis event buffer: %w", err)
	}
	defer func() {
		if err := buf.Close(); err != nil {
			slog.Error("error closing event buffer", "error", err)
		}
	}()

	rules, corrRules, err := rulestore.LoadRuleFiles(rulesDir)
	if err != nil {
		return fmt.Errorf("failed to load rule definitions from %s: %w", rulesDir, err)
	}
	ruleStore := rulestore.New(db.DB())
	for _, rule := range rules {
		if err := ruleStore.Upsert(ctx, rule); err != nil {
			return fmt.Errorf("failed to sync rule %s: %w", rule.ID, err)
		}
	}
	slog.Info("synced rule definitions", "rules", len(rules), "correlation_rules", len(corrRules))

	historical := historicalstore.NewPostgresStore(db.DB())
	detectionEngine := detection.New(historical, cfg.Detection)
	alerts := alertgen.New(db.DB(), buf, cfg.Alert)
	corrStore := correlation.NewStore(db.DB())
	corrEngine := correlation.New(buf, corrStore, ruleStore, alerts, cfg.Correlation, cfg.State, corrRules)
	sweeper := correlation.NewSweeper(corrStore, cfg.Correlation.SweepInterval(), cfg.Correlation.WindowGraceSeconds, 0)

	runner := scheduler.New(db.DB(), cfg.Scheduler, ruleStore, detectionEngine, alerts, historical, buf, corrEngine, sweeper)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		go pollBufferStats(ctx, buf)
		slog.Info("metrics server listening", "addr", cfg.Metrics.Addr)
	}

	slog.Info("starting sentineld", "config_dir", configDir, "rules_dir", rulesDir)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler stopped unexpectedly: %w", err)
	}
	slog.Info("sentineld stopped")
	return nil
}

func pollBufferStats(ctx context.Context, buf *buffer.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf.PollStats(ctx)
		}
	}
}
