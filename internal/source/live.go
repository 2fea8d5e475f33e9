// Package source implements the price source adapters: live last-trade
// quotes, order-book snapshot files and the user's own fill history.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// LastTradeFetcher fetches the last traded price of a token.
type LastTradeFetcher interface {
	GetLastTradePrice(ctx context.Context, tokenID string) (float64, error)
}

// Live resolves legs from the exchange's last trade price through a price
// cache. The cache key is the instrument id alone: the upstream endpoint
// returns the same price whichever side the leg is on.
type Live struct {
	client LastTradeFetcher
	cache  domain.PriceCache
	now    func() time.Time
}

var _ domain.PriceAdapter = (*Live)(nil)

// NewLive creates a Live adapter.
func NewLive(client LastTradeFetcher, cache domain.PriceCache) *Live {
	return &Live{client: client, cache: cache, now: time.Now}
}

// Resolve returns the cached or freshly fetched last trade price. Live quotes
// carry no size.
func (l *Live) Resolve(ctx context.Context, inst domain.Instrument) (domain.Quote, error) {
	price, err := l.cache.GetOrFetch(ctx, inst.InstrumentID, l.client.GetLastTradePrice)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("source: live %s: %w", inst.InstrumentID, err)
	}
	return domain.Quote{Price: price, ObservedAt: l.now()}, nil
}
