package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/memory"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/pipeline"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/report"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/alanyoungcy/polyarb/internal/source"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
	"github.com/alanyoungcy/polyarb/internal/strategy"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics   *metrics.Metrics
	SignalBus domain.SignalBus
	// LockManager is nil when Redis is disabled.
	LockManager domain.LockManager

	Runs *service.RunService

	// HealthChecks holds one check per connected backend.
	HealthChecks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that releases connections in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	sources, err := cfg.Sources()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handler.Check),
	}
	runDeps := service.RunDeps{Metrics: deps.Metrics}

	// --- PostgreSQL ---
	var fillStore domain.FillStore
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.HealthChecks["postgres"] = pgClient.Ping

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		if cfg.Report.Persist {
			runDeps.Store = postgres.NewReportStore(pool)
		}
		if cfg.Data.FillsPath == "" {
			pgFills := postgres.NewFillStore(pool)
			fillStore = pgFills
			if cfg.Data.FillsImportPath != "" && cfg.Data.UserID != "" {
				importFills(ctx, source.NewCSVFillStore(cfg.Data.FillsImportPath), cfg.Data.UserID, pgFills, logger)
			}
		}
		logger.InfoContext(ctx, "postgres connected")
	}
	if fillStore == nil && cfg.Data.FillsPath != "" {
		fillStore = source.NewCSVFillStore(cfg.Data.FillsPath)
	}

	// --- Redis ---
	var priceCache domain.PriceCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close failed", slog.String("error", err.Error()))
			}
		})
		deps.HealthChecks["redis"] = redisClient.Ping

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Cache.Backend == "redis" {
			priceCache = redis.NewPriceCache(redisClient, cfg.Cache.TTL.Duration, deps.Metrics)
		}
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.SignalBus = memory.NewSignalBus()
	}
	if priceCache == nil {
		priceCache = memory.NewPriceCache(cfg.Cache.TTL.Duration, memory.WithMetrics(deps.Metrics))
	}
	runDeps.Bus = deps.SignalBus

	// --- S3 ---
	var blobWriter domain.BlobWriter
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.HealthChecks["s3"] = s3Client.Health

		runDeps.Blobs = s3blob.NewReader(s3Client)
		if cfg.Report.UploadS3 {
			blobWriter = s3blob.NewWriter(s3Client)
		}
		logger.InfoContext(ctx, "s3 connected", slog.String("bucket", cfg.S3.Bucket))
	}

	// --- Price adapters ---
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost,
		polymarket.WithRateLimit(cfg.Polymarket.RateLimit, cfg.Polymarket.Burst),
		polymarket.WithMetrics(deps.Metrics),
	)

	adapters := map[domain.PriceSource]domain.PriceAdapter{
		domain.SourceLive: source.NewLive(clob, priceCache),
	}
	for _, kind := range []domain.PriceSource{domain.SourceAsk, domain.SourceMid, domain.SourceBid} {
		book, err := source.NewBook(cfg.Data.BookDir, kind)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		adapters[kind] = book
	}
	if fillStore != nil && cfg.Data.UserID != "" {
		adapters[domain.SourceActual] = source.NewFills(fillStore, cfg.Data.UserID)
	} else {
		logger.WarnContext(ctx, "no fill history configured; actual source will be incomplete")
	}
	runDeps.Adapters = adapters

	// --- Strategies ---
	strategies, err := strategy.NewRegistry(cfg.Data.StrategiesPath, logger)
	if err != nil {
		if !strings.EqualFold(cfg.Mode, "serve") {
			return fail(fmt.Errorf("wire: %w", err))
		}
		// Serve mode only reads persisted reports.
		logger.WarnContext(ctx, "strategies unavailable", slog.String("error", err.Error()))
		strategies = strategy.NewStaticRegistry(nil)
	}
	runDeps.Strategies = strategies

	// --- Pipeline stages ---
	if cfg.Scheduler.RefreshBooks {
		runDeps.Books = pipeline.NewBookRefresher(clob, cfg.Data.BookDir, logger)
	}
	if cfg.Scheduler.FetchSpreads {
		runDeps.Spreads = pipeline.NewSpreadSampler(clob, logger)
	}
	runDeps.Writer = report.NewWriter(cfg.Report.OutputDir, blobWriter, cfg.Report.S3Prefix, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		runDeps.Notifier = notify.NewNotifier(senders, logger)
	}

	var alertSource domain.PriceSource
	if cfg.Notify.AlertSource != "" {
		alertSource, err = domain.ParsePriceSource(cfg.Notify.AlertSource)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
	}

	deps.Runs = service.NewRunService(service.RunConfig{
		LookupPath:     cfg.Data.MarketLookupPath,
		ReportDir:      cfg.Report.OutputDir,
		Sources:        sources,
		Concurrency:    cfg.Evaluator.Concurrency,
		AdapterTimeout: cfg.Evaluator.AdapterTimeout.Duration,
		AlertSource:    alertSource,
		AlertThreshold: cfg.Notify.AlertThresholdPct,
	}, runDeps, logger)

	return deps, cleanup, nil
}

// importFills loads new rows of a fills export into Postgres. Failures are
// logged; the actual source then runs on whatever history is stored.
func importFills(ctx context.Context, src *source.CSVFillStore, userID string, dst domain.FillImporter, logger *slog.Logger) {
	n, err := source.ImportFills(ctx, src, userID, dst)
	if err != nil {
		logger.WarnContext(ctx, "fills import failed",
			slog.String("path", src.Path(userID)),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.InfoContext(ctx, "fills imported",
		slog.String("path", src.Path(userID)),
		slog.Int("rows", n),
	)
}

// isBusy reports whether err means a pass was already running.
func isBusy(err error) bool {
	return errors.Is(err, service.ErrPassInProgress)
}
