package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextrole/conveyor/internal/ingest"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep, exit",
	Long:  "One-shot sweep: expires records past their deadline, marks unseen records stale and expires records stale past the grace period.",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg, debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sweeper := ingest.NewSweeper(store, cfg.Sweep.StalenessWindow, cfg.Sweep.ExpiryGrace, logger)
	if _, err := sweeper.Sweep(ctx); err != nil {
		logger.Error("sweep aborted", "error", err)
		os.Exit(1)
	}
	return nil
}
