package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/pipeline"
	"github.com/alanyoungcy/polyarb/internal/report"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// OnceMode runs a single evaluation pass and returns. Sink failures are
// returned after the report has been logged.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "once mode: running single pass")
	r, err := deps.Runs.RunOnce(ctx)
	if r.RunID != "" {
		a.logSummary(ctx, r.RunID, report.Summary(r))
	}
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}
	return nil
}

// RunMode evaluates on the scheduler interval until ctx is cancelled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "run mode: starting scheduler",
		slog.Duration("interval", a.cfg.Scheduler.Interval.Duration))
	return a.newScheduler(deps).Run(ctx)
}

// ServeMode exposes the latest reports over HTTP and WebSocket without
// evaluating. Passes only run when triggered through the API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "serve mode: starting API server")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the scheduler and the API server side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "full mode: starting scheduler and API server")
	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	g.Go(func() error { return sched.Run(ctx) })
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) newScheduler(deps *Dependencies) *pipeline.Scheduler {
	return pipeline.NewScheduler(
		deps.Runs.Pass,
		a.cfg.Scheduler.Interval.Duration,
		deps.LockManager,
		a.cfg.Scheduler.LockTTL.Duration,
		a.logger,
	)
}

// startHTTPServer adds the API server, its shutdown watcher and the WebSocket
// hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, deps.Runs.Latest, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Burst:       a.cfg.Server.Burst,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger, handler.WithClientCount(hub.Clients)),
		Reports: handler.NewReportHandler(deps.Runs, isBusy, a.logger),
		Metrics: promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) logSummary(ctx context.Context, runID string, rows []report.SummaryRow) {
	for _, row := range rows {
		a.logger.InfoContext(ctx, "arbitrage",
			slog.String("run_id", runID),
			slog.String("strategy", row.Strategy),
			slog.String("source", string(row.Source)),
			slog.String("percentage", row.Percentage.String()),
		)
	}
}
