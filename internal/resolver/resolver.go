// Package resolver turns a strategy leg and a price source into a price or a
// definite "unavailable" result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 10 * time.Second

// LegPrice is the outcome of resolving one leg. Err is nil when the leg has a
// usable price; otherwise it wraps one of domain.ErrLookupMiss,
// domain.ErrAdapterUnavailable or domain.ErrCoercion.
type LegPrice struct {
	Instrument domain.Instrument
	Quote      domain.Quote
	Err        error
}

// Available reports whether the leg resolved to a price.
func (p LegPrice) Available() bool { return p.Err == nil }

// Resolver dispatches legs to price adapters. It is safe for concurrent use.
type Resolver struct {
	lookup   domain.MarketLookup
	adapters map[domain.PriceSource]domain.PriceAdapter
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithTimeout sets the per-adapter-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records leg outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver. adapters is copied.
func New(lookup domain.MarketLookup, adapters map[domain.PriceSource]domain.PriceAdapter, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		lookup:   lookup,
		adapters: make(map[domain.PriceSource]domain.PriceAdapter, len(adapters)),
		timeout:  DefaultTimeout,
		logger:   logger.With(slog.String("component", "resolver")),
	}
	for src, a := range adapters {
		r.adapters[src] = a
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveLeg looks up the leg's instrument and asks the source's adapter for
// a quote. It never fails outright: every problem is reported through
// LegPrice.Err and logged.
func (r *Resolver) ResolveLeg(ctx context.Context, leg domain.TradeLeg, src domain.PriceSource) LegPrice {
	out := LegPrice{Instrument: domain.Instrument{MarketSlug: leg.MarketSlug, Outcome: leg.Outcome}}

	inst, err := r.lookup.Resolve(leg.MarketSlug, leg.Outcome)
	if err != nil {
		if !errors.Is(err, domain.ErrLookupMiss) {
			err = fmt.Errorf("%w: %w", domain.ErrLookupMiss, err)
		}
		return r.fail(ctx, out, src, err)
	}
	out.Instrument = inst

	adapter, ok := r.adapters[src]
	if !ok {
		return r.fail(ctx, out, src, fmt.Errorf("%w: %w: %s", domain.ErrAdapterUnavailable, domain.ErrUnknownSource, src))
	}

	q, err := r.call(ctx, adapter, inst)
	if err != nil {
		if !errors.Is(err, domain.ErrCoercion) && !errors.Is(err, domain.ErrAdapterUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrAdapterUnavailable, err)
		}
		return r.fail(ctx, out, src, err)
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return r.fail(ctx, out, src, fmt.Errorf("%w: %v", domain.ErrCoercion, q.Price))
	}

	out.Quote = q
	r.metrics.RecordLeg(string(src), string(domain.LegResolved))
	return out
}

type callResult struct {
	q   domain.Quote
	err error
}

// call runs the adapter under the resolver timeout. The deadline holds even
// for adapters that ignore ctx: a late result is discarded and the leg is
// unavailable. A panic becomes an adapter failure.
func (r *Resolver) call(ctx context.Context, a domain.PriceAdapter, inst domain.Instrument) (domain.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		var res callResult
		defer func() {
			if rec := recover(); rec != nil {
				res = callResult{err: fmt.Errorf("%w: adapter panic: %v", domain.ErrAdapterUnavailable, rec)}
			}
			done <- res
		}()
		res.q, res.err = a.Resolve(ctx, inst)
	}()

	select {
	case res := <-done:
		if ctx.Err() != nil && res.err == nil {
			return domain.Quote{}, fmt.Errorf("%w: %w", domain.ErrAdapterUnavailable, ctx.Err())
		}
		return res.q, res.err
	case <-ctx.Done():
		return domain.Quote{}, fmt.Errorf("%w: %w", domain.ErrAdapterUnavailable, ctx.Err())
	}
}

func (r *Resolver) fail(ctx context.Context, out LegPrice, src domain.PriceSource, err error) LegPrice {
	out.Err = err
	r.metrics.RecordLeg(string(src), domain.LegReason(err))
	r.logger.WarnContext(ctx, "leg unavailable",
		slog.String("source", string(src)),
		slog.String("market_slug", out.Instrument.MarketSlug),
		slog.String("outcome", out.Instrument.Outcome),
		slog.String("reason", domain.LegReason(err)),
		slog.String("error", err.Error()),
	)
	return out
}
