package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// SpreadFetcher fetches the exchange-computed spread for an instrument.
type SpreadFetcher interface {
	GetSpread(ctx context.Context, tokenID string) (domain.Spread, error)
}

// SpreadSampler snapshots spreads for every leg of every strategy.
type SpreadSampler struct {
	client  SpreadFetcher
	workers int
	logger  *slog.Logger
}

// NewSpreadSampler creates a SpreadSampler.
func NewSpreadSampler(client SpreadFetcher, logger *slog.Logger) *SpreadSampler {
	return &SpreadSampler{
		client:  client,
		workers: 4,
		logger:  logger.With(slog.String("component", "spread_sampler")),
	}
}

// Sample returns spreads keyed by strategy name and then by "slug (outcome)".
// Each instrument is fetched once even when several strategies share it.
// Legs that fail to resolve or fetch are omitted.
func (s *SpreadSampler) Sample(ctx context.Context, lookup domain.MarketLookup, strategies []domain.Strategy) map[string]map[string]float64 {
	instruments := make(map[string]domain.Instrument)
	for _, st := range strategies {
		for _, leg := range st.Legs() {
			inst, err := lookup.Resolve(leg.MarketSlug, leg.Outcome)
			if err != nil {
				continue
			}
			instruments[inst.InstrumentID] = inst
		}
	}

	var mu sync.Mutex
	spreads := make(map[string]float64, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for id := range instruments {
		g.Go(func() error {
			sp, err := s.client.GetSpread(gctx, id)
			if err != nil {
				s.logger.Debug("spread fetch failed",
					slog.String("instrument_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			spreads[id] = sp.Spread
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]map[string]float64, len(strategies))
	for _, st := range strategies {
		for _, leg := range st.Legs() {
			inst, err := lookup.Resolve(leg.MarketSlug, leg.Outcome)
			if err != nil {
				continue
			}
			v, ok := spreads[inst.InstrumentID]
			if !ok {
				continue
			}
			if out[st.Name] == nil {
				out[st.Name] = make(map[string]float64)
			}
			out[st.Name][leg.TradeLeg.String()] = v
		}
	}
	return out
}
