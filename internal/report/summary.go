// Package report renders evaluation passes to disk: the full JSON report, a
// ranked summary CSV and one line-item CSV per (strategy, source) pair.
package report

import (
	"sort"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// SummaryRow is one line of the ranked summary.
type SummaryRow struct {
	Strategy   string             `json:"strategy"`
	Source     domain.PriceSource `json:"source"`
	Percentage domain.Percentage  `json:"percentage"`
}

// Summary flattens a report into rows sorted by percentage, highest first.
// Incomplete pairs sort last. Ties keep strategy then source order so the
// output is stable between identical passes.
func Summary(r domain.Report) []SummaryRow {
	rows := make([]SummaryRow, 0, len(r.Results)*len(r.Sources))
	for name, bySource := range r.Results {
		for src, res := range bySource {
			rows = append(rows, SummaryRow{Strategy: name, Source: src, Percentage: res.Percentage})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := rows[i].Percentage.Value()
		b, bok := rows[j].Percentage.Value()
		if aok != bok {
			return aok
		}
		if aok && a != b {
			return a > b
		}
		if rows[i].Strategy != rows[j].Strategy {
			return rows[i].Strategy < rows[j].Strategy
		}
		return rows[i].Source < rows[j].Source
	})
	return rows
}

// Above returns complete rows for src whose percentage is at least threshold.
func Above(r domain.Report, src domain.PriceSource, threshold float64) []SummaryRow {
	var out []SummaryRow
	for _, row := range Summary(r) {
		if row.Source != src {
			continue
		}
		if v, ok := row.Percentage.Value(); ok && v >= threshold {
			out = append(out, row)
		}
	}
	return out
}
