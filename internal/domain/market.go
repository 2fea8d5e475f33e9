package domain

import "strings"

// Instrument is a single tradable binary outcome of a market.
type Instrument struct {
	MarketSlug   string `json:"market_slug"`
	Outcome      string `json:"outcome"`
	InstrumentID string `json:"instrument_id"`
}

// Token is one outcome token of a market lookup entry.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// MarketEntry is one value of the market lookup file, keyed by condition id.
type MarketEntry struct {
	ConditionID string  `json:"-"`
	Description string  `json:"description"`
	MarketSlug  string  `json:"market_slug"`
	Tokens      []Token `json:"tokens"`
}

// MarketLookup resolves (market slug, outcome) pairs to instruments. Outcome
// comparison is case-insensitive. Implementations return ErrLookupMiss when
// the pair is unknown.
type MarketLookup interface {
	Resolve(marketSlug, outcome string) (Instrument, error)
}

// NormalizeOutcome folds an outcome label for case-insensitive comparison.
func NormalizeOutcome(outcome string) string {
	return strings.ToLower(strings.TrimSpace(outcome))
}
