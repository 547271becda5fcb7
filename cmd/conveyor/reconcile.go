package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextrole/conveyor/internal/dedup"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <record-id> <record-id>",
	Short: "Fold two colliding catalog records",
	Long:  "Merges two canonical records that turned out to describe the same role. The older record survives; the newer one is demoted to a duplicate and its references are redirected.",
	Args:  cobra.ExactArgs(2),
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	engine := dedup.New(store, cfg.Dedup.SimilarityThreshold, cfg.Dedup.DateWindow, logger)
	winner, err := engine.ReconcileCollision(ctx, args[0], args[1])
	if err != nil {
		logger.Error("reconcile failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Merged: %s survives as canonical\n", winner)
	return nil
}
