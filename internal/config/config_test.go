package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Cache.TTL.Duration != 60*time.Second {
		t.Errorf("cache ttl = %v, want 60s", cfg.Cache.TTL.Duration)
	}
	if cfg.Evaluator.AdapterTimeout.Duration != 10*time.Second {
		t.Errorf("adapter timeout = %v, want 10s", cfg.Evaluator.AdapterTimeout.Duration)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Cache.Backend = "redis"
	cfg.Evaluator.Concurrency = 0
	cfg.Evaluator.Sources = []string{"live", "last"}
	cfg.Scheduler.LockTTL.Duration = 2 * cfg.Scheduler.Interval.Duration

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`unknown mode "trade"`,
		"backend redis requires redis.enabled",
		"concurrency must be 1-64",
		"unknown price source",
		"lock_ttl must be > 0 and <= interval",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestSourcesDedupAndDefault(t *testing.T) {
	cfg := Defaults()
	cfg.Evaluator.Sources = []string{"ASK", "bid", "ask"}
	got, err := cfg.Sources()
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(got) != 2 || got[0] != domain.SourceAsk || got[1] != domain.SourceBid {
		t.Fatalf("Sources = %v, want [ask bid]", got)
	}

	cfg.Evaluator.Sources = nil
	got, _ = cfg.Sources()
	if len(got) != len(domain.DefaultSources()) {
		t.Fatalf("empty sources should fall back to defaults, got %v", got)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "once"

[cache]
ttl = "30s"

[evaluator]
concurrency = 8
sources = ["ask", "mid"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLYARB_EVALUATOR_CONCURRENCY", "16")
	t.Setenv("POLYARB_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "once" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Cache.TTL.Duration != 30*time.Second {
		t.Errorf("ttl = %v", cfg.Cache.TTL.Duration)
	}
	if cfg.Evaluator.Concurrency != 16 {
		t.Errorf("env override not applied, concurrency = %d", cfg.Evaluator.Concurrency)
	}
	if len(cfg.Evaluator.Sources) != 2 {
		t.Errorf("sources = %v", cfg.Evaluator.Sources)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Data.BookDir != "./data/book_data" {
		t.Errorf("unset fields should keep defaults, book_dir = %q", cfg.Data.BookDir)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "hunter2"
	cfg.Server.APIKey = "k"
	out := RedactedConfig(&cfg)
	if out.Supabase.Password != redacted || out.Server.APIKey != redacted {
		t.Fatalf("secrets not redacted: %+v", out.Supabase)
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secrets should stay empty")
	}
	if cfg.Supabase.Password != "hunter2" {
		t.Errorf("original mutated")
	}
}
