package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextrole/conveyor/internal/ingest"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/nextrole/conveyor/internal/scheduler"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline daemon",
	Long:  "Runs ingestion cycles and lifecycle sweeps on their configured intervals; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg, debug)

	logger.Info("config loaded",
		"ingest_interval", cfg.Ingest.Interval.String(),
		"sweep_interval", cfg.Sweep.Interval.String(),
		"sources", len(enabledSources(cfg)),
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	pipeline, cleanup, err := buildPipeline(cfg, store, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	sweeper := ingest.NewSweeper(store, cfg.Sweep.StalenessWindow, cfg.Sweep.ExpiryGrace, logger)

	sched := scheduler.New(pipeline, sweeper, cfg.Ingest.Interval, cfg.Sweep.Interval, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	sched.Stop()
	logger.Info("goodbye")
	return nil
}
