// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// Provider names accepted by archive.provider and notify.provider.
const (
	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
	ProviderPubSub = "pubsub"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config captures all job configuration knobs loaded via Viper.
type Config struct {
	Enricher EnricherConfig `mapstructure:"enricher"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// EnricherConfig governs batching, pacing and the placeholder sentinel.
type EnricherConfig struct {
	BatchSize           int    `mapstructure:"batch_size"`
	TotalBatches        int    `mapstructure:"total_batches"`
	PacingDelayMs       int    `mapstructure:"pacing_delay_ms"`
	PlaceholderImageURL string `mapstructure:"placeholder_image_url"`
	// MaxAttempts of 0 retries unmatched records forever.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	UserAgent     string  `mapstructure:"user_agent"`
	RespectRobots bool    `mapstructure:"respect_robots"`
	MaxRPSPerHost float64 `mapstructure:"max_rps_per_host"`
}

// DBConfig controls access to the recipe database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	AttemptsTable   string        `mapstructure:"attempts_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects where unmatched pages are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects where run summaries are published.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig sets the listen address of the metrics router.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and ENRICHER_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Archive.Provider = strings.ToLower(strings.TrimSpace(cfg.Archive.Provider))
	cfg.Notify.Provider = strings.ToLower(strings.TrimSpace(cfg.Notify.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("enricher.batch_size", 50)
	v.SetDefault("enricher.total_batches", 10)
	v.SetDefault("enricher.pacing_delay_ms", 400)
	v.SetDefault("enricher.placeholder_image_url", enrichment.DefaultPlaceholderImageURL)
	v.SetDefault("enricher.max_attempts", 0)

	v.SetDefault("http.timeout_ms", 10000)
	v.SetDefault("http.user_agent", defaultUserAgent)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_rps_per_host", 0)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "recipes")
	v.SetDefault("db.attempts_table", "image_enrichment_attempts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.local_dir", "data/misses")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "misses")

	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Enricher.BatchSize <= 0 {
		return fmt.Errorf("enricher.batch_size must be > 0")
	}
	if c.Enricher.TotalBatches <= 0 {
		return fmt.Errorf("enricher.total_batches must be > 0")
	}
	if c.Enricher.PacingDelayMs < 0 {
		return fmt.Errorf("enricher.pacing_delay_ms must be >= 0")
	}
	if c.Enricher.MaxAttempts < 0 {
		return fmt.Errorf("enricher.max_attempts must be >= 0")
	}
	if u, err := url.Parse(c.Enricher.PlaceholderImageURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enricher.placeholder_image_url must be an absolute URL")
	}
	if c.HTTP.TimeoutMs <= 0 {
		return fmt.Errorf("http.timeout_ms must be > 0")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent must be set")
	}
	if c.HTTP.MaxRPSPerHost < 0 {
		return fmt.Errorf("http.max_rps_per_host must be >= 0")
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.DB.MinConns < 0 || c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
	}
	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if strings.TrimSpace(c.Archive.LocalDir) == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Notify.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	return nil
}

// PacingDelay returns the configured pause between candidates.
func (c Config) PacingDelay() time.Duration {
	return time.Duration(c.Enricher.PacingDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-fetch timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutMs) * time.Millisecond
}
