package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setFloat64(&cfg.Polymarket.RateLimit, "POLYARB_POLYMARKET_RATE_LIMIT")
	setInt(&cfg.Polymarket.Burst, "POLYARB_POLYMARKET_BURST")

	// ── Data ──
	setStr(&cfg.Data.MarketLookupPath, "POLYARB_DATA_MARKET_LOOKUP_PATH")
	setStr(&cfg.Data.StrategiesPath, "POLYARB_DATA_STRATEGIES_PATH")
	setStr(&cfg.Data.BookDir, "POLYARB_DATA_BOOK_DIR")
	setStr(&cfg.Data.FillsPath, "POLYARB_DATA_FILLS_PATH")
	setStr(&cfg.Data.UserID, "POLYARB_DATA_USER_ID")
	setStr(&cfg.Data.FillsImportPath, "POLYARB_DATA_FILLS_IMPORT_PATH")

	// ── Cache / evaluator / scheduler ──
	setStr(&cfg.Cache.Backend, "POLYARB_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "POLYARB_CACHE_TTL")
	setInt(&cfg.Evaluator.Concurrency, "POLYARB_EVALUATOR_CONCURRENCY")
	setDuration(&cfg.Evaluator.AdapterTimeout, "POLYARB_EVALUATOR_ADAPTER_TIMEOUT")
	setStringSlice(&cfg.Evaluator.Sources, "POLYARB_EVALUATOR_SOURCES")
	setDuration(&cfg.Scheduler.Interval, "POLYARB_SCHEDULER_INTERVAL")
	setBool(&cfg.Scheduler.RefreshBooks, "POLYARB_SCHEDULER_REFRESH_BOOKS")
	setBool(&cfg.Scheduler.FetchSpreads, "POLYARB_SCHEDULER_FETCH_SPREADS")
	setDuration(&cfg.Scheduler.LockTTL, "POLYARB_SCHEDULER_LOCK_TTL")

	// ── Report ──
	setStr(&cfg.Report.OutputDir, "POLYARB_REPORT_OUTPUT_DIR")
	setBool(&cfg.Report.UploadS3, "POLYARB_REPORT_UPLOAD_S3")
	setStr(&cfg.Report.S3Prefix, "POLYARB_REPORT_S3_PREFIX")
	setBool(&cfg.Report.Persist, "POLYARB_REPORT_PERSIST")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "POLYARB_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "POLYARB_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYARB_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYARB_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYARB_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYARB_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYARB_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYARB_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYARB_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLYARB_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYARB_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLYARB_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYARB_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.RateLimit, "POLYARB_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.Burst, "POLYARB_SERVER_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setFloat64(&cfg.Notify.AlertThresholdPct, "POLYARB_NOTIFY_ALERT_THRESHOLD_PCT")
	setStr(&cfg.Notify.AlertSource, "POLYARB_NOTIFY_ALERT_SOURCE")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
