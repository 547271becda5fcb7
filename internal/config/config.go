package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextrole/conveyor/internal/dedup"
	"github.com/nextrole/conveyor/internal/model"
)

// Config is the root configuration for the conveyor pipeline.
type Config struct {
	Ingest  IngestConfig
	Sweep   SweepConfig
	Sources SourcesConfig
	Dedup   DedupConfig
	Scoring ScoringConfig
	Storage StorageConfig
	Logging LoggingConfig
}

// IngestConfig controls the ingestion cycle cadence and fan-out.
type IngestConfig struct {
	Interval time.Duration // gap between ingestion cycles
	Workers  int           // concurrent source adapters per cycle
}

// SweepConfig controls the lifecycle sweep: when records go STALE and when
// stale or dated records expire.
type SweepConfig struct {
	Interval        time.Duration // gap between sweeps
	StalenessWindow time.Duration // unseen for this long → STALE
	ExpiryGrace     time.Duration // STALE and unseen this much longer → EXPIRED
}

// SourcesConfig enables individual job boards and carries the shared
// politeness knobs: per-source rate limiting and retry with backoff.
type SourcesConfig struct {
	RemoteOK    RemoteOKConfig
	TheMuse     TheMuseConfig
	Adzuna      AdzunaConfig
	PartnerFeed PartnerFeedConfig

	MinDelay       time.Duration            // minimum gap between fetches per source
	Overrides      map[string]time.Duration // per-source overrides, keyed by source name
	MaxRetries     int                      // additional attempts after the first failure
	RetryBaseDelay time.Duration            // delay before the first retry, doubled after
	FetchTimeout   time.Duration            // HTTP client timeout per request
}

// MinDelayFor returns the rate-limit delay for one source, falling back to
// the shared MinDelay.
func (s SourcesConfig) MinDelayFor(source model.JobSource) time.Duration {
	if d, ok := s.Overrides[string(source)]; ok {
		return d
	}
	return s.MinDelay
}

type RemoteOKConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TheMuseConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"` // optional, lifts the anonymous rate limit
	Pages   int    `yaml:"pages"`
}

type AdzunaConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppID   string `yaml:"app_id"`
	AppKey  string `yaml:"app_key"`
	Country string `yaml:"country"`
	What    string `yaml:"what"` // standing search query
	Pages   int    `yaml:"pages"`
}

type PartnerFeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"` // amqp:// broker URL
	Queue   string `yaml:"queue"`
}

// DedupConfig carries the identity-resolution tunables. The threshold and
// window are design defaults, not extracted ground truth; both are exposed
// here on purpose.
type DedupConfig struct {
	SimilarityThreshold float64       // fuzzy score at or above → duplicate
	DateWindow          time.Duration // posting-date proximity window
}

// ScoringConfig carries the relevance-scoring tunables.
type ScoringConfig struct {
	Weights         WeightsConfig
	RecencyHalfLife time.Duration // posting age halving the recency component
	Cutoff          float64       // totals below this are dropped from results
	RecommendMin    float64       // totals at or above are flagged recommended
	RequestTimeout  time.Duration // on-demand single-pair budget
	BatchChunk      int           // jobs per cancellation check
	BatchWorkers    int           // concurrent scorers per chunk
	Cache           CacheConfig
}

// WeightsConfig allocates the 100 points across scoring components.
type WeightsConfig struct {
	Skill      float64 `yaml:"skill"`
	Salary     float64 `yaml:"salary"`
	Location   float64 `yaml:"location"`
	Experience float64 `yaml:"experience"`
	Recency    float64 `yaml:"recency"`
}

func (w WeightsConfig) sum() float64 {
	return w.Skill + w.Salary + w.Location + w.Experience + w.Recency
}

func (w WeightsConfig) empty() bool {
	return w == WeightsConfig{}
}

// CacheConfig selects the short-TTL score cache backend.
type CacheConfig struct {
	Type     string // "memory", "redis" or "none"
	TTL      time.Duration
	RedisURL string // redis:// URL
}

// StorageConfig selects the catalog backend.
type StorageConfig struct {
	Backend     string // "sqlite", "postgres" or "memory"
	SQLitePath  string
	PostgresDSN string
}

// LoggingConfig selects handler flavor and verbosity.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Defaults, overridable per field in YAML.
const (
	defaultIngestInterval  = 30 * time.Minute
	defaultIngestWorkers   = 4
	defaultSweepInterval   = 6 * time.Hour
	defaultStalenessWindow = 7 * 24 * time.Hour
	defaultExpiryGrace     = 14 * 24 * time.Hour
	defaultMinDelay        = 2 * time.Second
	defaultMaxRetries      = 2
	defaultRetryBaseDelay  = 5 * time.Second
	defaultFetchTimeout    = 30 * time.Second
	defaultThreshold       = 0.85
	defaultDateWindow      = 72 * time.Hour
	defaultHalfLife        = 14 * 24 * time.Hour
	defaultRecommendMin    = 70
	defaultRequestTimeout  = 300 * time.Millisecond
	defaultBatchChunk      = 100
	defaultBatchWorkers    = 4
	defaultCacheTTL        = 5 * time.Minute
	defaultSQLitePath      = "catalog.db"
)

// rawConfig mirrors the YAML layout: snake_case keys, durations as strings.
type rawConfig struct {
	Ingest struct {
		Interval string `yaml:"interval"`
		Workers  int    `yaml:"workers"`
	} `yaml:"ingest"`
	Sweep struct {
		Interval        string `yaml:"interval"`
		StalenessWindow string `yaml:"staleness_window"`
		ExpiryGrace     string `yaml:"expiry_grace"`
	} `yaml:"sweep"`
	Sources struct {
		RemoteOK       RemoteOKConfig    `yaml:"remoteok"`
		TheMuse        TheMuseConfig     `yaml:"themuse"`
		Adzuna         AdzunaConfig      `yaml:"adzuna"`
		PartnerFeed    PartnerFeedConfig `yaml:"partner_feed"`
		MinDelay       string            `yaml:"min_delay"`
		Overrides      map[string]string `yaml:"overrides"`
		MaxRetries     *int              `yaml:"max_retries"`
		RetryBaseDelay string            `yaml:"retry_base_delay"`
		FetchTimeout   string            `yaml:"fetch_timeout"`
	} `yaml:"sources"`
	Dedup struct {
		SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		DateWindow          string   `yaml:"date_window"`
	} `yaml:"dedup"`
	Scoring struct {
		Weights         WeightsConfig `yaml:"weights"`
		RecencyHalfLife string        `yaml:"recency_half_life"`
		Cutoff          float64       `yaml:"cutoff"`
		RecommendMin    *float64      `yaml:"recommend_min"`
		RequestTimeout  string        `yaml:"request_timeout"`
		BatchChunk      int           `yaml:"batch_chunk"`
		BatchWorkers    int           `yaml:"batch_workers"`
		Cache           struct {
			Type     string `yaml:"type"`
			TTL      string `yaml:"ttl"`
			RedisURL string `yaml:"redis_url"`
		} `yaml:"cache"`
	} `yaml:"scoring"`
	Storage struct {
		Backend     string `yaml:"backend"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads the YAML config file at path, expands environment variables,
// applies defaults, validates, and returns the typed Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables so secrets stay out of the file.
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{}

	cfg.Ingest.Interval, err = duration("ingest.interval", raw.Ingest.Interval, defaultIngestInterval)
	if err != nil {
		return nil, err
	}
	cfg.Ingest.Workers = orInt(raw.Ingest.Workers, defaultIngestWorkers)

	cfg.Sweep.Interval, err = duration("sweep.interval", raw.Sweep.Interval, defaultSweepInterval)
	if err != nil {
		return nil, err
	}
	cfg.Sweep.StalenessWindow, err = duration("sweep.staleness_window", raw.Sweep.StalenessWindow, defaultStalenessWindow)
	if err != nil {
		return nil, err
	}
	cfg.Sweep.ExpiryGrace, err = duration("sweep.expiry_grace", raw.Sweep.ExpiryGrace, defaultExpiryGrace)
	if err != nil {
		return nil, err
	}

	cfg.Sources.RemoteOK = raw.Sources.RemoteOK
	cfg.Sources.TheMuse = raw.Sources.TheMuse
	cfg.Sources.Adzuna = raw.Sources.Adzuna
	cfg.Sources.PartnerFeed = raw.Sources.PartnerFeed
	cfg.Sources.MinDelay, err = duration("sources.min_delay", raw.Sources.MinDelay, defaultMinDelay)
	if err != nil {
		return nil, err
	}
	cfg.Sources.Overrides = make(map[string]time.Duration, len(raw.Sources.Overrides))
	for source, rawDelay := range raw.Sources.Overrides {
		d, err := time.ParseDuration(rawDelay)
		if err != nil {
			return nil, fmt.Errorf("parse sources.overrides[%q]: %w", source, err)
		}
		cfg.Sources.Overrides[source] = d
	}
	cfg.Sources.MaxRetries = defaultMaxRetries
	if raw.Sources.MaxRetries != nil {
		cfg.Sources.MaxRetries = *raw.Sources.MaxRetries
	}
	cfg.Sources.RetryBaseDelay, err = duration("sources.retry_base_delay", raw.Sources.RetryBaseDelay, defaultRetryBaseDelay)
	if err != nil {
		return nil, err
	}
	cfg.Sources.FetchTimeout, err = duration("sources.fetch_timeout", raw.Sources.FetchTimeout, defaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	cfg.Dedup.SimilarityThreshold = defaultThreshold
	if raw.Dedup.SimilarityThreshold != nil {
		cfg.Dedup.SimilarityThreshold = *raw.Dedup.SimilarityThreshold
	}
	cfg.Dedup.DateWindow, err = duration("dedup.date_window", raw.Dedup.DateWindow, defaultDateWindow)
	if err != nil {
		return nil, err
	}

	cfg.Scoring.Weights = raw.Scoring.Weights
	if cfg.Scoring.Weights.empty() {
		cfg.Scoring.Weights = WeightsConfig{Skill: 35, Salary: 20, Location: 20, Experience: 15, Recency: 10}
	}
	cfg.Scoring.RecencyHalfLife, err = duration("scoring.recency_half_life", raw.Scoring.RecencyHalfLife, defaultHalfLife)
	if err != nil {
		return nil, err
	}
	cfg.Scoring.Cutoff = raw.Scoring.Cutoff
	cfg.Scoring.RecommendMin = defaultRecommendMin
	if raw.Scoring.RecommendMin != nil {
		cfg.Scoring.RecommendMin = *raw.Scoring.RecommendMin
	}
	cfg.Scoring.RequestTimeout, err = duration("scoring.request_timeout", raw.Scoring.RequestTimeout, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	cfg.Scoring.BatchChunk = orInt(raw.Scoring.BatchChunk, defaultBatchChunk)
	cfg.Scoring.BatchWorkers = orInt(raw.Scoring.BatchWorkers, defaultBatchWorkers)
	cfg.Scoring.Cache.Type = orString(raw.Scoring.Cache.Type, "memory")
	cfg.Scoring.Cache.TTL, err = duration("scoring.cache.ttl", raw.Scoring.Cache.TTL, defaultCacheTTL)
	if err != nil {
		return nil, err
	}
	cfg.Scoring.Cache.RedisURL = raw.Scoring.Cache.RedisURL

	cfg.Storage.Backend = orString(raw.Storage.Backend, "sqlite")
	cfg.Storage.SQLitePath = orString(raw.Storage.SQLitePath, defaultSQLitePath)
	cfg.Storage.PostgresDSN = raw.Storage.PostgresDSN

	cfg.Logging = raw.Logging

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration parses an optional duration field, applying def when absent.
func duration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func validate(cfg *Config) error {
	if cfg.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be positive, got %v", cfg.Ingest.Interval)
	}
	if cfg.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", cfg.Ingest.Workers)
	}

	enabled := 0
	for _, on := range []bool{
		cfg.Sources.RemoteOK.Enabled,
		cfg.Sources.TheMuse.Enabled,
		cfg.Sources.Adzuna.Enabled,
		cfg.Sources.PartnerFeed.Enabled,
	} {
		if on {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	if cfg.Sources.Adzuna.Enabled && (cfg.Sources.Adzuna.AppID == "" || cfg.Sources.Adzuna.AppKey == "") {
		return fmt.Errorf("sources.adzuna.app_id and app_key are required when adzuna is enabled")
	}
	if cfg.Sources.PartnerFeed.Enabled && (cfg.Sources.PartnerFeed.URL == "" || cfg.Sources.PartnerFeed.Queue == "") {
		return fmt.Errorf("sources.partner_feed.url and queue are required when partner_feed is enabled")
	}

	if t := cfg.Dedup.SimilarityThreshold; t <= dedup.MinThreshold() || t > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (%.2f, 1], got %v",
			dedup.MinThreshold(), t)
	}
	if cfg.Dedup.DateWindow <= 0 {
		return fmt.Errorf("dedup.date_window must be positive, got %v", cfg.Dedup.DateWindow)
	}

	if sum := cfg.Scoring.Weights.sum(); sum < 99.999 || sum > 100.001 {
		return fmt.Errorf("scoring.weights must sum to 100 to keep totals on the 0–100 scale, got %v", sum)
	}
	if cfg.Scoring.RequestTimeout <= 0 {
		return fmt.Errorf("scoring.request_timeout must be positive, got %v", cfg.Scoring.RequestTimeout)
	}
	switch cfg.Scoring.Cache.Type {
	case "memory", "none":
	case "redis":
		if cfg.Scoring.Cache.RedisURL == "" {
			return fmt.Errorf("scoring.cache.redis_url is required when cache type is \"redis\"")
		}
	default:
		return fmt.Errorf("scoring.cache.type must be \"memory\", \"redis\" or \"none\", got %q", cfg.Scoring.Cache.Type)
	}

	switch cfg.Storage.Backend {
	case "sqlite", "memory":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required when backend is \"postgres\"")
		}
	default:
		return fmt.Errorf("storage.backend must be \"sqlite\", \"postgres\" or \"memory\", got %q", cfg.Storage.Backend)
	}

	if cfg.Sweep.StalenessWindow <= 0 {
		return fmt.Errorf("sweep.staleness_window must be positive, got %v", cfg.Sweep.StalenessWindow)
	}
	if cfg.Sweep.ExpiryGrace < 0 {
		return fmt.Errorf("sweep.expiry_grace must not be negative, got %v", cfg.Sweep.ExpiryGrace)
	}

	return nil
}
