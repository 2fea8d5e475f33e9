package arbitrage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// DefaultConcurrency caps in-flight (strategy, source) evaluations.
const DefaultConcurrency = 12

// Orchestrator evaluates every strategy against every source with bounded
// parallelism. Pairs share nothing except the price cache behind the
// resolver.
type Orchestrator struct {
	evaluator   *Evaluator
	concurrency int
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. concurrency < 1 uses
// DefaultConcurrency.
func NewOrchestrator(e *Evaluator, concurrency int, logger *slog.Logger) *Orchestrator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		evaluator:   e,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// EvaluateAll returns strategy name -> source -> result for every pair. A
// nil or empty sources slice means domain.DefaultSources(). It never fails:
// unpriceable pairs come back incomplete.
func (o *Orchestrator) EvaluateAll(ctx context.Context, strategies []domain.Strategy, sources []domain.PriceSource) domain.Results {
	if len(sources) == 0 {
		sources = domain.DefaultSources()
	}
	start := time.Now()

	results := make(domain.Results, len(strategies))
	for _, s := range strategies {
		results[s.Name] = make(map[domain.PriceSource]domain.ArbitrageResult, len(sources))
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.concurrency)
	for _, s := range strategies {
		for _, src := range sources {
			g.Go(func() error {
				res := o.evaluator.Evaluate(ctx, s, src)
				mu.Lock()
				results[s.Name][src] = res
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	o.logger.InfoContext(ctx, "evaluated strategies",
		slog.Int("strategies", len(strategies)),
		slog.Int("sources", len(sources)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return results
}
