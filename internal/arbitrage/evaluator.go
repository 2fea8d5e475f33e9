package arbitrage

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/resolver"
)

// LegResolver resolves a single leg under a price source.
type LegResolver interface {
	ResolveLeg(ctx context.Context, leg domain.TradeLeg, src domain.PriceSource) resolver.LegPrice
}

// Evaluator prices one strategy under one source.
type Evaluator struct {
	resolver LegResolver
	registry *Registry
	logger   *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil registry uses DefaultRegistry.
func NewEvaluator(r LegResolver, reg *Registry, logger *slog.Logger) *Evaluator {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		resolver: r,
		registry: reg,
		logger:   logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate resolves the strategy's legs in order and combines them. The first
// unavailable leg makes the result incomplete and the remaining legs are not
// resolved; they are reported as skipped.
func (e *Evaluator) Evaluate(ctx context.Context, s domain.Strategy, src domain.PriceSource) domain.ArbitrageResult {
	res := domain.ArbitrageResult{
		Strategy:   s.Name,
		Source:     src,
		Method:     s.Method,
		Percentage: domain.Incomplete,
	}

	combiner, err := e.registry.Get(s.Method)
	if err != nil {
		e.logger.ErrorContext(ctx, "no combiner for strategy",
			slog.String("strategy", s.Name),
			slog.String("method", string(s.Method)),
		)
		return res
	}

	legs := s.Legs()
	res.Legs = make([]domain.LegDetail, 0, len(legs))
	priced := make([]PricedLeg, 0, len(legs))
	incomplete := false

	for _, leg := range legs {
		d := domain.LegDetail{
			Side:       leg.Side,
			MarketSlug: leg.MarketSlug,
			Outcome:    leg.Outcome,
			Source:     src,
		}
		if incomplete {
			d.Status = domain.LegSkipped
			res.Legs = append(res.Legs, d)
			continue
		}

		lp := e.resolver.ResolveLeg(ctx, leg.TradeLeg, src)
		d.InstrumentID = lp.Instrument.InstrumentID
		if !lp.Available() {
			d.Status = domain.LegUnavailable
			d.Reason = domain.LegReason(lp.Err)
			res.Legs = append(res.Legs, d)
			incomplete = true
			e.logger.InfoContext(ctx, "strategy incomplete",
				slog.String("strategy", s.Name),
				slog.String("source", string(src)),
				slog.String("leg", leg.TradeLeg.String()),
				slog.String("reason", d.Reason),
			)
			continue
		}

		price := lp.Quote.Price
		d.Status = domain.LegResolved
		d.Price = &price
		d.Size = lp.Quote.Size
		res.Legs = append(res.Legs, d)
		priced = append(priced, PricedLeg{Side: leg.Side, Price: price})
	}

	if incomplete || len(priced) == 0 {
		return res
	}
	res.Percentage = combiner.Percentage(priced)
	return res
}
