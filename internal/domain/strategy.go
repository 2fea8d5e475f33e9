package domain

import (
	"fmt"
	"strings"
)

// Method is how a strategy combines its leg prices.
type Method string

const (
	MethodAllNo    Method = "all_no"
	MethodBalanced Method = "balanced"
)

// LegSide labels which leg set of a strategy a leg belongs to.
type LegSide string

const (
	SidePositions LegSide = "positions"
	SideA         LegSide = "side_a"
	SideB         LegSide = "side_b"
)

// TradeLeg is one (market, outcome) component of a strategy.
type TradeLeg struct {
	MarketSlug string `json:"market_slug"`
	Outcome    string `json:"outcome"`
}

func (l TradeLeg) String() string {
	return fmt.Sprintf("%s (%s)", l.MarketSlug, l.Outcome)
}

// StrategyLeg is a TradeLeg tagged with its side.
type StrategyLeg struct {
	Side LegSide `json:"side"`
	TradeLeg
}

// Strategy is a declared multi-leg trade. AllNo strategies use Positions;
// Balanced strategies use SideA and SideB. Strategies are read-only once
// loaded.
type Strategy struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Method      Method     `json:"method"`
	Positions   []TradeLeg `json:"positions,omitempty"`
	SideA       []TradeLeg `json:"side_a,omitempty"`
	SideB       []TradeLeg `json:"side_b,omitempty"`
}

// Legs returns every leg of the strategy in evaluation order.
func (s Strategy) Legs() []StrategyLeg {
	var legs []StrategyLeg
	switch s.Method {
	case MethodAllNo:
		legs = make([]StrategyLeg, 0, len(s.Positions))
		for _, l := range s.Positions {
			legs = append(legs, StrategyLeg{Side: SidePositions, TradeLeg: l})
		}
	case MethodBalanced:
		legs = make([]StrategyLeg, 0, len(s.SideA)+len(s.SideB))
		for _, l := range s.SideA {
			legs = append(legs, StrategyLeg{Side: SideA, TradeLeg: l})
		}
		for _, l := range s.SideB {
			legs = append(legs, StrategyLeg{Side: SideB, TradeLeg: l})
		}
	}
	return legs
}

// Validate reports structural problems with a single strategy.
func (s Strategy) Validate() error {
	var errs []string
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, "name must not be empty")
	}
	switch s.Method {
	case MethodAllNo:
		if len(s.Positions) == 0 {
			errs = append(errs, "all_no requires at least one position")
		}
		if len(s.SideA) > 0 || len(s.SideB) > 0 {
			errs = append(errs, "all_no must not declare side_a or side_b")
		}
	case MethodBalanced:
		if len(s.SideA) == 0 || len(s.SideB) == 0 {
			errs = append(errs, "balanced requires legs on both side_a and side_b")
		}
		if len(s.Positions) > 0 {
			errs = append(errs, "balanced must not declare positions")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown method %q", s.Method))
	}
	for _, l := range append(append(append([]TradeLeg{}, s.Positions...), s.SideA...), s.SideB...) {
		if l.MarketSlug == "" || l.Outcome == "" {
			errs = append(errs, "every leg needs a market and an outcome")
			break
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidStrategy, s.Name, strings.Join(errs, "; "))
	}
	return nil
}
