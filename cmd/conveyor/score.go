package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nextrole/conveyor/internal/logging"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	criteriaPath string
	scoreUser    string
	scoreJobID   string
	scoreTop     int
	scorePage    int
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank the catalog against a search profile",
	Long:  "Loads a search profile from YAML, scores every scorable record and prints the ranking. With --job, scores a single record and prints its component breakdown.",
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&criteriaPath, "profile", "f", "", "path to the search profile YAML (required)")
	scoreCmd.Flags().StringVar(&scoreUser, "user", "cli", "user id the cached breakdowns are attributed to")
	scoreCmd.Flags().StringVar(&scoreJobID, "job", "", "score one record id instead of ranking the catalog")
	scoreCmd.Flags().IntVar(&scoreTop, "top", 20, "results per page")
	scoreCmd.Flags().IntVar(&scorePage, "page", 1, "result page, 1-based")
	rootCmd.AddCommand(scoreCmd)
}

// profileFile is the YAML shape of a search profile.
type profileFile struct {
	DesiredTitles []string `yaml:"desired_titles"`
	Skills        []string `yaml:"skills"`
	SalaryMin     int      `yaml:"salary_min"`
	SalaryMax     int      `yaml:"salary_max"`
	Locations     []struct {
		City    string `yaml:"city"`
		State   string `yaml:"state"`
		Country string `yaml:"country"`
	} `yaml:"locations"`
	Remote     bool   `yaml:"remote"`
	Experience string `yaml:"experience"`
}

func loadProfile(path string) (model.UserSearchCriteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.UserSearchCriteria{}, fmt.Errorf("read profile: %w", err)
	}
	var raw profileFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.UserSearchCriteria{}, fmt.Errorf("parse profile: %w", err)
	}

	criteria := model.UserSearchCriteria{
		DesiredTitles: raw.DesiredTitles,
		Skills:        raw.Skills,
		SalaryMin:     raw.SalaryMin,
		SalaryMax:     raw.SalaryMax,
		Remote:        raw.Remote,
		Experience:    model.ParseExperienceLevel(raw.Experience),
	}
	for _, l := range raw.Locations {
		criteria.Locations = append(criteria.Locations, model.Location{City: l.City, State: l.State, Country: l.Country})
	}
	return criteria, nil
}

func runScore(cmd *cobra.Command, args []string) error {
	if criteriaPath == "" {
		return fmt.Errorf("--profile is required")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg, debug)

	criteria, err := loadProfile(criteriaPath)
	if err != nil {
		logger.Error("failed to load profile", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	svc, err := buildScoreService(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to build scoring service", "error", err)
		os.Exit(1)
	}

	if scoreJobID != "" {
		breakdown, err := svc.ScoreJob(ctx, scoreUser, scoreJobID, criteria)
		if err != nil {
			logger.Error("scoring failed", "job_id", scoreJobID, "error", err)
			os.Exit(1)
		}
		printBreakdown(scoreJobID, breakdown)
		return nil
	}

	results, err := svc.GetScoredJobs(ctx, scoreUser, criteria, model.Page{Number: scorePage, Size: scoreTop})
	if err != nil {
		logger.Error("scoring failed", "error", err)
		os.Exit(1)
	}
	printRanking(results)
	return nil
}

func printBreakdown(jobID string, b model.ScoreBreakdown) {
	fmt.Printf("Record %s\n", jobID)
	fmt.Println(strings.Repeat("─", 28))
	fmt.Printf("%-14s %6.1f\n", "Skills", b.SkillMatch)
	fmt.Printf("%-14s %6.1f\n", "Salary", b.SalaryFit)
	fmt.Printf("%-14s %6.1f\n", "Location", b.LocationFit)
	fmt.Printf("%-14s %6.1f\n", "Experience", b.ExperienceFit)
	fmt.Printf("%-14s %6.1f\n", "Recency", b.Recency)
	fmt.Println(strings.Repeat("─", 28))
	fmt.Printf("%-14s %6.1f / 100\n", "Total", b.Total)
	if b.Partial {
		fmt.Println("\nServed from cache after a scoring timeout.")
	}
}

func printRanking(results []model.ScoredJob) {
	if len(results) == 0 {
		fmt.Println("No records above the score cutoff.")
		return
	}

	fmt.Printf("%-6s %-4s %-38s %-22s %-18s %s\n", "Score", "Rec", "Title", "Company", "Location", "Posted")
	fmt.Println(strings.Repeat("─", 102))
	for _, sj := range results {
		rec := ""
		if sj.Recommended {
			rec = "*"
		}
		fmt.Printf("%-6.1f %-4s %-38s %-22s %-18s %s\n",
			sj.Breakdown.Total,
			rec,
			truncate(sj.Job.Title, 38),
			truncate(sj.Job.Company, 22),
			truncate(sj.Job.Location.String(), 18),
			sj.Job.PostedAt.Format("2006-01-02"),
		)
	}
	fmt.Printf("\n%d records shown\n", len(results))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
