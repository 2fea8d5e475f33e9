// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Data       DataConfig       `toml:"data"`
	Cache      CacheConfig      `toml:"cache"`
	Evaluator  EvaluatorConfig  `toml:"evaluator"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Report     ReportConfig     `toml:"report"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the read-only CLOB endpoint and client limits.
type PolymarketConfig struct {
	ClobHost string `toml:"clob_host"`
	// RateLimit is the sustained request rate per second against the CLOB.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// DataConfig locates the files produced by external collaborators.
type DataConfig struct {
	// MarketLookupPath is a local path or an s3://bucket/key URL.
	MarketLookupPath string `toml:"market_lookup_path"`
	StrategiesPath   string `toml:"strategies_path"`
	BookDir          string `toml:"book_dir"`

	// FillsPath is the user's fill-history CSV; "{user_id}" is replaced with
	// UserID. When empty and Postgres is enabled, fills are read from the
	// user_fills table instead.
	FillsPath string `toml:"fills_path"`
	UserID    string `toml:"user_id"`

	// FillsImportPath, when set with Postgres as the fill source, is a CSV
	// export whose new rows are copied into user_fills at startup.
	FillsImportPath string `toml:"fills_import_path"`
}

// CacheConfig selects the live price cache backend.
type CacheConfig struct {
	Backend string   `toml:"backend"`
	TTL     duration `toml:"ttl"`
}

// EvaluatorConfig bounds the batch orchestrator.
type EvaluatorConfig struct {
	Concurrency    int      `toml:"concurrency"`
	AdapterTimeout duration `toml:"adapter_timeout"`
	Sources        []string `toml:"sources"`
}

// SchedulerConfig controls the repeated evaluation loop.
type SchedulerConfig struct {
	Interval     duration `toml:"interval"`
	RefreshBooks bool     `toml:"refresh_books"`
	FetchSpreads bool     `toml:"fetch_spreads"`
	LockTTL      duration `toml:"lock_ttl"`
}

// ReportConfig controls where reports are written.
type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	UploadS3  bool   `toml:"upload_s3"`
	S3Prefix  string `toml:"s3_prefix"`
	Persist   bool   `toml:"persist"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per second per client IP; 0 disables it.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// NotifyConfig holds notification channel credentials and the alert rule.
type NotifyConfig struct {
	TelegramToken     string  `toml:"telegram_token"`
	TelegramChatID    string  `toml:"telegram_chat_id"`
	DiscordWebhookURL string  `toml:"discord_webhook_url"`
	AlertThresholdPct float64 `toml:"alert_threshold_pct"`
	AlertSource       string  `toml:"alert_source"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			RateLimit: 10,
			Burst:     5,
		},
		Data: DataConfig{
			MarketLookupPath: "./data/market_lookup.json",
			StrategiesPath:   "./strategies.toml",
			BookDir:          "./data/book_data",
			FillsPath:        "./data/user_trades/{user_id}_enriched_transactions.csv",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     duration{60 * time.Second},
		},
		Evaluator: EvaluatorConfig{
			Concurrency:    12,
			AdapterTimeout: duration{10 * time.Second},
			Sources:        []string{"live", "ask", "mid", "bid", "actual"},
		},
		Scheduler: SchedulerConfig{
			Interval:     duration{5 * time.Minute},
			RefreshBooks: true,
			FetchSpreads: true,
			LockTTL:      duration{4*time.Minute + 30*time.Second},
		},
		Report: ReportConfig{
			OutputDir: "./strategies",
			S3Prefix:  "reports",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   20,
			Burst:       40,
		},
		Notify: NotifyConfig{
			AlertThresholdPct: 1.0,
			AlertSource:       "ask",
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":  true,
	"run":   true,
	"serve": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, run, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.RateLimit <= 0 {
		errs = append(errs, "polymarket: rate_limit must be > 0")
	}
	if c.Polymarket.Burst < 1 {
		errs = append(errs, "polymarket: burst must be >= 1")
	}

	if mode != "serve" {
		if c.Data.MarketLookupPath == "" {
			errs = append(errs, "data: market_lookup_path must not be empty")
		}
		if c.Data.StrategiesPath == "" {
			errs = append(errs, "data: strategies_path must not be empty")
		}
		if c.Data.BookDir == "" {
			errs = append(errs, "data: book_dir must not be empty")
		}
	}
	if strings.HasPrefix(c.Data.MarketLookupPath, "s3://") && !c.S3.Enabled {
		errs = append(errs, "data: market_lookup_path is an s3:// URL but s3 is disabled")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "cache: backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}

	if c.Evaluator.Concurrency < 1 || c.Evaluator.Concurrency > 64 {
		errs = append(errs, fmt.Sprintf("evaluator: concurrency must be 1-64, got %d", c.Evaluator.Concurrency))
	}
	if c.Evaluator.AdapterTimeout.Duration <= 0 {
		errs = append(errs, "evaluator: adapter_timeout must be > 0")
	}
	if _, err := c.Sources(); err != nil {
		errs = append(errs, "evaluator: "+err.Error())
	}

	if c.Scheduler.Interval.Duration <= 0 {
		errs = append(errs, "scheduler: interval must be > 0")
	}
	if c.Scheduler.LockTTL.Duration <= 0 || c.Scheduler.LockTTL.Duration > c.Scheduler.Interval.Duration {
		errs = append(errs, fmt.Sprintf("scheduler: lock_ttl must be > 0 and <= interval, got %s", c.Scheduler.LockTTL.Duration))
	}

	if c.Report.OutputDir == "" {
		errs = append(errs, "report: output_dir must not be empty")
	}
	if c.Report.UploadS3 && !c.S3.Enabled {
		errs = append(errs, "report: upload_s3 requires s3.enabled")
	}
	if c.Report.Persist && !c.Supabase.Enabled {
		errs = append(errs, "report: persist requires supabase.enabled")
	}

	if c.Supabase.Enabled {
		if c.Supabase.DSN == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if mode == "serve" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Notify.AlertSource != "" {
		if _, err := domain.ParsePriceSource(c.Notify.AlertSource); err != nil {
			errs = append(errs, "notify: "+err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sources parses Evaluator.Sources, falling back to the default set when the
// list is empty. Duplicates are dropped.
func (c *Config) Sources() ([]domain.PriceSource, error) {
	if len(c.Evaluator.Sources) == 0 {
		return domain.DefaultSources(), nil
	}
	seen := make(map[domain.PriceSource]bool, len(c.Evaluator.Sources))
	out := make([]domain.PriceSource, 0, len(c.Evaluator.Sources))
	for _, s := range c.Evaluator.Sources {
		src, err := domain.ParsePriceSource(s)
		if err != nil {
			return nil, err
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out, nil
}
