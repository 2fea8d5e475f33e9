package source

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Fills resolves legs from the user's most recent fill for the same market
// and outcome ("actual" prices).
type Fills struct {
	store  domain.FillStore
	userID string
}

var _ domain.PriceAdapter = (*Fills)(nil)

// NewFills creates a Fills adapter over a fill store.
func NewFills(store domain.FillStore, userID string) *Fills {
	return &Fills{store: store, userID: userID}
}

// Resolve returns the latest fill's price per token and share count.
func (f *Fills) Resolve(ctx context.Context, inst domain.Instrument) (domain.Quote, error) {
	fill, err := f.store.LatestFill(ctx, f.userID, inst.MarketSlug, inst.Outcome)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("source: actual %s (%s): %w", inst.MarketSlug, inst.Outcome, err)
	}
	shares := fill.Shares
	return domain.Quote{
		Price:      fill.PricePerToken,
		Size:       &shares,
		ObservedAt: fill.Timestamp,
	}, nil
}
