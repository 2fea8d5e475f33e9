// Package pipeline holds the work that runs around an evaluation pass:
// refreshing order-book snapshots, sampling spreads and scheduling passes.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/bookfile"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// BookFetcher fetches a full order book for an instrument.
type BookFetcher interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}

// BookRefresher rewrites the per-leg order-book files the ask, bid and mid
// sources read from.
type BookRefresher struct {
	client  BookFetcher
	dir     string
	workers int
	logger  *slog.Logger
}

// NewBookRefresher creates a BookRefresher writing into dir.
func NewBookRefresher(client BookFetcher, dir string, logger *slog.Logger) *BookRefresher {
	return &BookRefresher{
		client:  client,
		dir:     dir,
		workers: 4,
		logger:  logger.With(slog.String("component", "book_refresher")),
	}
}

// Refresh fetches a book for every leg and writes it atomically. Legs that
// fail to resolve or fetch keep their previous file. It returns the number of
// files written; only context cancellation is reported as an error.
func (r *BookRefresher) Refresh(ctx context.Context, lookup domain.MarketLookup, legs []domain.TradeLeg) (int, error) {
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, leg := range legs {
		g.Go(func() error {
			inst, err := lookup.Resolve(leg.MarketSlug, leg.Outcome)
			if err != nil {
				r.logger.Warn("book refresh: lookup miss",
					slog.String("market", leg.MarketSlug),
					slog.String("outcome", leg.Outcome),
				)
				return nil
			}
			book, err := r.client.GetOrderBook(gctx, inst.InstrumentID)
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("book refresh: fetch failed",
					slog.String("market", inst.MarketSlug),
					slog.String("outcome", inst.Outcome),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if err := bookfile.Write(bookfile.Path(r.dir, inst.MarketSlug, inst.Outcome), book); err != nil {
				r.logger.Error("book refresh: write failed",
					slog.String("market", inst.MarketSlug),
					slog.String("error", err.Error()),
				)
				return nil
			}
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()

	r.logger.Info("order books refreshed",
		slog.Int("legs", len(legs)),
		slog.Int64("written", written.Load()),
	)
	return int(written.Load()), err
}
