package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/nextrole/conveyor/internal/catalog"
	"github.com/nextrole/conveyor/internal/config"
	"github.com/nextrole/conveyor/internal/dedup"
	"github.com/nextrole/conveyor/internal/ingest"
	"github.com/nextrole/conveyor/internal/logging"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/nextrole/conveyor/internal/normalize"
	"github.com/nextrole/conveyor/internal/ratelimit"
	"github.com/nextrole/conveyor/internal/retry"
	"github.com/nextrole/conveyor/internal/score"
	"github.com/nextrole/conveyor/internal/source"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "Job catalog pipeline — every board, one feed",
	Long:  "Conveyor pulls postings from job boards and partner feeds, folds duplicates into a single canonical catalog, and scores records against user search profiles.",
	// Default to `start` so that `conveyor` with no args runs the daemon.
	// This preserves compatibility with systemd unit files that invoke the binary directly.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: CONVEYOR_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > CONVEYOR_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("CONVEYOR_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(cfg *config.Config, dbg bool) *slog.Logger {
	logCfg := cfg.Logging
	if dbg {
		logCfg.Level = "debug"
	}
	return logging.New(os.Stderr, logging.Options{Level: logCfg.Level, Format: logCfg.Format})
}

// openStore opens the configured catalog backend.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (model.CatalogStore, error) {
	switch cfg.Backend {
	case "memory":
		logger.Info("using in-memory catalog")
		return catalog.NewMemoryStore(), nil
	case "postgres":
		logger.Info("using postgres catalog")
		return catalog.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		logger.Info("using sqlite catalog", "path", cfg.SQLitePath)
		return catalog.NewSQLiteStore(cfg.SQLitePath)
	}
}

// buildAdapters assembles one adapter per enabled source. Every adapter is
// wrapped with the shared per-source rate limiter, then retry with backoff,
// so retries respect the politeness delay too. The returned cleanup closes
// the partner feed's broker connection.
func buildAdapters(cfg *config.Config, logger *slog.Logger) ([]model.SourceAdapter, func(), error) {
	httpClient := &http.Client{Timeout: cfg.Sources.FetchTimeout}
	cleanup := func() {}

	var adapters []model.SourceAdapter
	if cfg.Sources.RemoteOK.Enabled {
		adapters = append(adapters, source.NewRemoteOKAdapter(httpClient))
	}
	if cfg.Sources.TheMuse.Enabled {
		adapters = append(adapters, source.NewTheMuseAdapter(cfg.Sources.TheMuse.APIKey, cfg.Sources.TheMuse.Pages, httpClient))
	}
	if cfg.Sources.Adzuna.Enabled {
		az := cfg.Sources.Adzuna
		adapters = append(adapters, source.NewAdzunaAdapter(az.AppID, az.AppKey, az.Country, az.What, az.Pages, httpClient))
	}
	if cfg.Sources.PartnerFeed.Enabled {
		feed, err := source.NewAMQPFeed(cfg.Sources.PartnerFeed.URL, cfg.Sources.PartnerFeed.Queue, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting partner feed: %w", err)
		}
		cleanup = func() {
			if err := feed.Close(); err != nil {
				logger.Warn("closing partner feed", "error", err)
			}
		}
		adapters = append(adapters, feed)
	}

	limiter := ratelimit.NewSourceRateLimiter(cfg.Sources.MinDelayFor)
	for i, a := range adapters {
		limited := ratelimit.NewLimitedAdapter(a, limiter)
		adapters[i] = retry.New(limited, cfg.Sources.MaxRetries, cfg.Sources.RetryBaseDelay, logger)
		logger.Info("registered source", "source", a.Source())
	}
	return adapters, cleanup, nil
}

// buildPipeline wires adapters, normalizer and dedup engine into one
// ingestion pipeline writing through store.
func buildPipeline(cfg *config.Config, store model.CatalogStore, logger *slog.Logger) (*ingest.Pipeline, func(), error) {
	adapters, cleanup, err := buildAdapters(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	engine := dedup.New(store, cfg.Dedup.SimilarityThreshold, cfg.Dedup.DateWindow, logger)
	pipe := ingest.NewPipeline(adapters, normalize.New(logger), engine, cfg.Ingest.Workers, logger)
	return pipe, cleanup, nil
}

// buildScoreService wires the scoring stack: engine, batch scorer and cache.
func buildScoreService(ctx context.Context, cfg *config.Config, store model.CatalogStore, logger *slog.Logger) (*score.Service, error) {
	engine := score.NewEngine(score.Weights{
		Skill:      cfg.Scoring.Weights.Skill,
		Salary:     cfg.Scoring.Weights.Salary,
		Location:   cfg.Scoring.Weights.Location,
		Experience: cfg.Scoring.Weights.Experience,
		Recency:    cfg.Scoring.Weights.Recency,
	}, cfg.Scoring.RecencyHalfLife)
	batch := score.NewBatchScorer(engine, cfg.Scoring.BatchChunk, cfg.Scoring.BatchWorkers)

	var cache model.ScoreCache
	switch cfg.Scoring.Cache.Type {
	case "redis":
		rc, err := score.NewRedisCache(ctx, cfg.Scoring.Cache.RedisURL, cfg.Scoring.Cache.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting score cache: %w", err)
		}
		logger.Info("using redis score cache")
		cache = rc
	case "none":
		cache = score.NopCache{}
	default:
		cache = score.NewMemoryCache(cfg.Scoring.Cache.TTL)
	}

	return score.NewService(store, engine, batch, cache, score.ServiceConfig{
		Cutoff:       cfg.Scoring.Cutoff,
		RecommendMin: cfg.Scoring.RecommendMin,
		Timeout:      cfg.Scoring.RequestTimeout,
	}, logger), nil
}

func enabledSources(cfg *config.Config) []model.JobSource {
	var sources []model.JobSource
	if cfg.Sources.RemoteOK.Enabled {
		sources = append(sources, model.SourceRemoteOK)
	}
	if cfg.Sources.TheMuse.Enabled {
		sources = append(sources, model.SourceTheMuse)
	}
	if cfg.Sources.Adzuna.Enabled {
		sources = append(sources, model.SourceAdzuna)
	}
	if cfg.Sources.PartnerFeed.Enabled {
		sources = append(sources, model.SourcePartnerFeed)
	}
	return sources
}
