package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextrole/conveyor/internal/catalog"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/spf13/cobra"
)

var ingestDryRun bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle, exit",
	Long:  "One-shot cycle: fetches every enabled source, resolves identities against the catalog, exits. With --dry-run nothing is persisted.",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "ingest into a throwaway in-memory catalog")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg, debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store model.CatalogStore
	if ingestDryRun {
		logger.Info("dry run: nothing will be persisted")
		store = catalog.NewMemoryStore()
	} else {
		store, err = openStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to open catalog", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	pipeline, cleanup, err := buildPipeline(cfg, store, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	stats, err := pipeline.RunCycle(ctx)
	if err != nil {
		logger.Error("ingest cycle aborted", "error", err)
		os.Exit(1)
	}
	if len(stats.SourceErrors) > 0 && len(stats.SourceErrors) == len(stats.Sources) {
		logger.Error("every source failed to fetch")
		os.Exit(1)
	}
	return nil
}
