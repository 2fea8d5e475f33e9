// Package service coordinates one evaluation pass end to end and keeps the
// latest report available to the API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/market"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/pipeline"
	"github.com/alanyoungcy/polyarb/internal/report"
	"github.com/alanyoungcy/polyarb/internal/resolver"
	"github.com/alanyoungcy/polyarb/internal/strategy"
)

// ErrPassInProgress is returned when a pass is requested while one is
// already running in this process.
var ErrPassInProgress = errors.New("service: evaluation pass already in progress")

// RunConfig holds the tunables of a pass.
type RunConfig struct {
	LookupPath     string
	ReportDir      string
	Sources        []domain.PriceSource
	Concurrency    int
	AdapterTimeout time.Duration
	// AlertSource is the source whose results trigger alerts. Empty
	// disables alerting.
	AlertSource    domain.PriceSource
	AlertThreshold float64
}

// RunDeps are the collaborators of a pass. Only Strategies and Adapters are
// required.
type RunDeps struct {
	Strategies *strategy.Registry
	Adapters   map[domain.PriceSource]domain.PriceAdapter
	Combiners  *arbitrage.Registry
	Blobs      domain.BlobReader
	Books      *pipeline.BookRefresher
	Spreads    *pipeline.SpreadSampler
	Writer     *report.Writer
	Store      domain.ReportStore
	Bus        domain.SignalBus
	Notifier   *notify.Notifier
	Metrics    *metrics.Metrics
}

// RunService runs evaluation passes. Passes in one process never overlap.
type RunService struct {
	cfg    RunConfig
	deps   RunDeps
	logger *slog.Logger

	running sync.Mutex
	latest  atomic.Pointer[domain.Report]
}

// NewRunService creates a RunService.
func NewRunService(cfg RunConfig, deps RunDeps, logger *slog.Logger) *RunService {
	if deps.Combiners == nil {
		deps.Combiners = arbitrage.DefaultRegistry()
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = domain.DefaultSources()
	}
	return &RunService{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "run_service")),
	}
}

// Pass runs one pass and discards the report. It matches pipeline.PassFunc.
func (s *RunService) Pass(ctx context.Context) error {
	_, err := s.RunOnce(ctx)
	return err
}

// RunOnce evaluates every strategy under every configured source and
// publishes the report to every configured sink. Sink failures are logged
// and returned joined after all sinks have been tried; the report is still
// returned and kept as the latest.
func (s *RunService) RunOnce(ctx context.Context) (domain.Report, error) {
	if !s.running.TryLock() {
		return domain.Report{}, ErrPassInProgress
	}
	defer s.running.Unlock()

	started := time.Now().UTC()
	runID := uuid.NewString()
	log := s.logger.With(slog.String("run_id", runID))

	if err := s.deps.Strategies.Reload(); err != nil {
		log.WarnContext(ctx, "strategy reload failed, keeping previous set", slog.String("error", err.Error()))
	}
	strategies := s.deps.Strategies.All()

	lookup, err := market.Load(ctx, s.cfg.LookupPath, s.deps.Blobs, s.logger)
	if err != nil {
		s.deps.Metrics.RecordBatchFailure()
		return domain.Report{}, fmt.Errorf("service: load market lookup: %w", err)
	}

	if s.deps.Books != nil {
		if _, err := s.deps.Books.Refresh(ctx, lookup, s.deps.Strategies.Legs()); err != nil {
			s.deps.Metrics.RecordBatchFailure()
			return domain.Report{}, fmt.Errorf("service: refresh books: %w", err)
		}
	}

	res := resolver.New(lookup, s.deps.Adapters, s.logger,
		resolver.WithTimeout(s.cfg.AdapterTimeout),
		resolver.WithMetrics(s.deps.Metrics),
	)
	orch := arbitrage.NewOrchestrator(
		arbitrage.NewEvaluator(res, s.deps.Combiners, s.logger),
		s.cfg.Concurrency,
		s.logger,
	)
	results := orch.EvaluateAll(ctx, strategies, s.cfg.Sources)
	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}

	r := domain.Report{
		RunID:        runID,
		StartedAt:    started,
		Sources:      append([]domain.PriceSource(nil), s.cfg.Sources...),
		Results:      results,
		Descriptions: descriptions(strategies),
	}
	if s.deps.Spreads != nil {
		r.Spreads = s.deps.Spreads.Sample(ctx, lookup, strategies)
	}
	r.FinishedAt = time.Now().UTC()

	total, incomplete := r.Counts()
	s.deps.Metrics.RecordBatch(r.FinishedAt.Sub(started), total, incomplete)
	s.latest.Store(&r)

	log.InfoContext(ctx, "evaluation pass complete",
		slog.Int("markets", lookup.Len()),
		slog.Int("strategies", len(strategies)),
		slog.Int("pairs", total),
		slog.Int("incomplete", incomplete),
		slog.Duration("elapsed", r.FinishedAt.Sub(started)),
	)

	return r, s.publish(ctx, log, r)
}

func (s *RunService) publish(ctx context.Context, log *slog.Logger, r domain.Report) error {
	var errs []error

	if s.deps.Writer != nil {
		if err := s.deps.Writer.Write(ctx, r); err != nil {
			log.ErrorContext(ctx, "write report", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.SaveReport(ctx, r); err != nil {
			log.ErrorContext(ctx, "persist report", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if s.deps.Bus != nil {
		payload, err := json.Marshal(r)
		if err == nil {
			err = s.deps.Bus.Publish(ctx, domain.ReportChannel, payload)
		}
		if err != nil {
			// Subscribers catch up from the next pass.
			log.WarnContext(ctx, "publish report", slog.String("error", err.Error()))
		}
	}

	if s.cfg.AlertSource != "" && s.deps.Notifier.Enabled() {
		opps := Opportunities(r, s.cfg.AlertSource, s.cfg.AlertThreshold)
		if err := s.deps.Notifier.AlertOpportunities(ctx, r.RunID, s.cfg.AlertThreshold, opps); err != nil {
			log.WarnContext(ctx, "send alerts", slog.String("error", err.Error()))
		}
	}

	return errors.Join(errs...)
}

// Latest returns the newest report: from this process if it has run a pass,
// otherwise from the store, otherwise from the report directory.
func (s *RunService) Latest(ctx context.Context) (domain.Report, error) {
	if r := s.latest.Load(); r != nil {
		return *r, nil
	}
	if s.deps.Store != nil {
		r, err := s.deps.Store.LatestReport(ctx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Report{}, err
		}
	}
	if s.cfg.ReportDir != "" {
		return report.ReadLatest(s.cfg.ReportDir)
	}
	return domain.Report{}, domain.ErrNotFound
}

// Runs lists stored runs, newest first.
func (s *RunService) Runs(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.deps.Store == nil {
		return nil, fmt.Errorf("service: run history needs a report store: %w", domain.ErrUnavailable)
	}
	return s.deps.Store.ListRuns(ctx, limit)
}

// Strategies returns the active strategy set.
func (s *RunService) Strategies() []domain.Strategy {
	return s.deps.Strategies.All()
}

// Opportunities lists the strategies whose src result is at least
// threshold percent, best first.
func Opportunities(r domain.Report, src domain.PriceSource, threshold float64) []notify.Opportunity {
	rows := report.Above(r, src, threshold)
	out := make([]notify.Opportunity, 0, len(rows))
	for _, row := range rows {
		v, _ := row.Percentage.Value()
		out = append(out, notify.Opportunity{
			Strategy:    row.Strategy,
			Description: r.Descriptions[row.Strategy],
			Source:      string(row.Source),
			Percentage:  v,
		})
	}
	return out
}

func descriptions(strategies []domain.Strategy) map[string]string {
	out := make(map[string]string)
	for _, s := range strategies {
		if s.Description != "" {
			out[s.Name] = s.Description
		}
	}
	return out
}
