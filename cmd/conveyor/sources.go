package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nextrole/conveyor/internal/model"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and prints a table of the configured job boards.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	type row struct {
		source  model.JobSource
		enabled bool
		detail  string
	}
	rows := []row{
		{model.SourceRemoteOK, cfg.Sources.RemoteOK.Enabled, "full feed"},
		{model.SourceTheMuse, cfg.Sources.TheMuse.Enabled,
			fmt.Sprintf("%d pages", cfg.Sources.TheMuse.Pages)},
		{model.SourceAdzuna, cfg.Sources.Adzuna.Enabled,
			fmt.Sprintf("%s %q, %d pages", cfg.Sources.Adzuna.Country, cfg.Sources.Adzuna.What, cfg.Sources.Adzuna.Pages)},
		{model.SourcePartnerFeed, cfg.Sources.PartnerFeed.Enabled,
			fmt.Sprintf("queue %q", cfg.Sources.PartnerFeed.Queue)},
	}

	fmt.Printf("%-15s %-10s %-10s %s\n", "Source", "Status", "Min delay", "Detail")
	fmt.Println(strings.Repeat("─", 60))

	enabled, disabled := 0, 0
	for _, r := range rows {
		status := "enabled"
		if !r.enabled {
			status = "disabled"
			disabled++
		} else {
			enabled++
		}
		fmt.Printf("%-15s %-10s %-10s %s\n", r.source, status, cfg.Sources.MinDelayFor(r.source).String(), r.detail)
	}

	fmt.Printf("\nTotal: %d sources (%d enabled, %d disabled)\n", len(rows), enabled, disabled)
	return nil
}
