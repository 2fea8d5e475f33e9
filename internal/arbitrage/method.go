// Package arbitrage computes arbitrage percentages for multi-leg strategies
// and evaluates every declared strategy against every price source.
package arbitrage

import (
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PricedLeg is a leg with its resolved price.
type PricedLeg struct {
	Side  domain.LegSide
	Price float64
}

// Combiner turns fully priced legs into an arbitrage percentage. It is only
// called once every leg of a strategy has a price.
type Combiner interface {
	Method() domain.Method
	Percentage(legs []PricedLeg) domain.Percentage
}

// AllNo prices a pool of "No" legs assuming exactly one of them loses. The
// most expensive leg is taken as the one that loses: its payout is dropped
// and its price must be covered by every other leg's payout.
type AllNo struct{}

func (AllNo) Method() domain.Method { return domain.MethodAllNo }

func (AllNo) Percentage(legs []PricedLeg) domain.Percentage {
	if len(legs) == 0 {
		return domain.Incomplete
	}
	maxPrice := legs[0].Price
	var payout float64
	for _, l := range legs {
		payout += 1 - l.Price
		if l.Price > maxPrice {
			maxPrice = l.Price
		}
	}
	totalWinnings := payout - (1 - maxPrice)
	return domain.Pct((totalWinnings - maxPrice) * 100)
}

// Balanced prices two offsetting leg sets that together pay exactly 1.
// A non-positive total cost is treated as incomplete instead of a 100%
// profit.
type Balanced struct{}

func (Balanced) Method() domain.Method { return domain.MethodBalanced }

func (Balanced) Percentage(legs []PricedLeg) domain.Percentage {
	var totalCost float64
	for _, l := range legs {
		totalCost += l.Price
	}
	if totalCost <= 0 {
		return domain.Incomplete
	}
	return domain.Pct((1 - totalCost) * 100)
}
