package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nextrole/conveyor/internal/audit"
	"github.com/nextrole/conveyor/internal/config"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse the catalog interactively (TUI)",
	Long:  "Shows the source picker TUI, then launches the split-pane catalog view with canonical records and their duplicates.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal. Route logs to a discard handler so store
	// chatter cannot corrupt the alt screen.
	logger := logging.Discard()

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runAudit(ctx, cfg, store)
	return nil
}

func runAudit(ctx context.Context, cfg *config.Config, store model.CatalogStore) {
	sources := enabledSources(cfg)

	for {
		src, ok, err := audit.RunSourcePicker(sources)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if !ok {
			return
		}

		label := "catalog"
		if src != "" {
			label = string(src)
		}
		records, err := audit.RunLoader(label, func(ctx context.Context) ([]model.CanonicalJob, error) {
			all, err := store.ListAll(ctx)
			if err != nil || src == "" {
				return all, err
			}
			var filtered []model.CanonicalJob
			for _, r := range all {
				if r.Source == src {
					filtered = append(filtered, r)
				}
			}
			return filtered, nil
		})
		if err != nil {
			fmt.Printf("Error loading catalog: %v\n", err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(records)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: loop → back to picker
	}
}
