package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// incompleteLabel is how an incomplete percentage is rendered and serialized.
const incompleteLabel = "incomplete"

// Percentage is an arbitrage percentage or the explicit incomplete marker.
// The zero value is incomplete, so a missing result can never read as 0%.
type Percentage struct {
	value float64
	valid bool
}

// Incomplete is the marker for a (strategy, source) pair that could not be
// priced.
var Incomplete = Percentage{}

// Pct wraps a computed arbitrage percentage.
func Pct(v float64) Percentage {
	return Percentage{value: v, valid: true}
}

// Value returns the percentage and whether it is complete.
func (p Percentage) Value() (float64, bool) {
	return p.value, p.valid
}

// IsIncomplete reports whether p is the incomplete marker.
func (p Percentage) IsIncomplete() bool {
	return !p.valid
}

// String formats p with two decimals, or as "incomplete".
func (p Percentage) String() string {
	if !p.valid {
		return incompleteLabel
	}
	return strconv.FormatFloat(p.value, 'f', 2, 64)
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.valid {
		return json.Marshal(incompleteLabel)
	}
	return json.Marshal(p.value)
}

func (p *Percentage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Incomplete
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != incompleteLabel {
			return fmt.Errorf("domain: unknown percentage label %q", s)
		}
		*p = Incomplete
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("domain: decode percentage: %w", err)
	}
	*p = Pct(v)
	return nil
}

// LegStatus is the outcome of resolving one leg.
type LegStatus string

const (
	LegResolved    LegStatus = "resolved"
	LegUnavailable LegStatus = "unavailable"
	// LegSkipped marks legs after the first unavailable one.
	LegSkipped LegStatus = "skipped"
)

// LegDetail is the per-leg diagnostic kept for line-item reporting.
type LegDetail struct {
	Side         LegSide     `json:"side"`
	MarketSlug   string      `json:"market_slug"`
	Outcome      string      `json:"outcome"`
	InstrumentID string      `json:"instrument_id,omitempty"`
	Source       PriceSource `json:"source"`
	Status       LegStatus   `json:"status"`
	Price        *float64    `json:"price,omitempty"`
	Size         *float64    `json:"size,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// ArbitrageResult is the evaluation of one strategy under one source.
type ArbitrageResult struct {
	Strategy   string      `json:"strategy"`
	Source     PriceSource `json:"source"`
	Method     Method      `json:"method"`
	Percentage Percentage  `json:"percentage"`
	Legs       []LegDetail `json:"legs"`
}

// Results maps strategy name to source to result.
type Results map[string]map[PriceSource]ArbitrageResult

// Report is one batch pass over every strategy and source.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Sources    []PriceSource `json:"sources"`
	Results    Results       `json:"results"`
	// Spreads maps strategy name to "slug (outcome)" to the exchange spread.
	Spreads      map[string]map[string]float64 `json:"spreads,omitempty"`
	Descriptions map[string]string             `json:"descriptions,omitempty"`
}

// Counts returns the number of evaluated pairs and how many were incomplete.
func (r Report) Counts() (total, incomplete int) {
	for _, bySource := range r.Results {
		for _, res := range bySource {
			total++
			if res.Percentage.IsIncomplete() {
				incomplete++
			}
		}
	}
	return total, incomplete
}

// RunSummary is a stored run without its per-leg detail.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pairs      int       `json:"pairs"`
	Incomplete int       `json:"incomplete"`
}
