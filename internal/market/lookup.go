// Package market loads the market lookup file and resolves (slug, outcome)
// pairs to exchange token ids.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Lookup is an immutable, case-insensitive index of market tokens. It is safe
// for concurrent use.
type Lookup struct {
	bySlug map[string]map[string]domain.Instrument
}

var _ domain.MarketLookup = (*Lookup)(nil)

// NewLookup indexes entries. When two entries declare the same slug and
// outcome the first one (in condition id order) wins and a warning is logged.
func NewLookup(entries []domain.MarketEntry, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]domain.MarketEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ConditionID < sorted[j].ConditionID })

	l := &Lookup{bySlug: make(map[string]map[string]domain.Instrument, len(sorted))}
	for _, e := range sorted {
		if e.MarketSlug == "" {
			continue
		}
		outcomes := l.bySlug[e.MarketSlug]
		if outcomes == nil {
			outcomes = make(map[string]domain.Instrument, len(e.Tokens))
			l.bySlug[e.MarketSlug] = outcomes
		}
		for _, tok := range e.Tokens {
			key := domain.NormalizeOutcome(tok.Outcome)
			if prev, ok := outcomes[key]; ok {
				logger.Warn("duplicate market lookup entry",
					slog.String("market_slug", e.MarketSlug),
					slog.String("outcome", tok.Outcome),
					slog.String("kept", prev.InstrumentID),
					slog.String("dropped", tok.TokenID),
				)
				continue
			}
			outcomes[key] = domain.Instrument{
				MarketSlug:   e.MarketSlug,
				Outcome:      tok.Outcome,
				InstrumentID: tok.TokenID,
			}
		}
	}
	return l
}

// Resolve returns the instrument for a market slug and outcome label. The
// outcome is matched case-insensitively.
func (l *Lookup) Resolve(marketSlug, outcome string) (domain.Instrument, error) {
	inst, ok := l.bySlug[marketSlug][domain.NormalizeOutcome(outcome)]
	if !ok || inst.InstrumentID == "" {
		return domain.Instrument{}, fmt.Errorf("%w: %s (%s)", domain.ErrLookupMiss, marketSlug, outcome)
	}
	return inst, nil
}

// Len returns the number of indexed markets.
func (l *Lookup) Len() int { return len(l.bySlug) }

// Decode parses the lookup file format:
//
//	{"<condition_id>": {"description": "...", "market_slug": "...",
//	  "tokens": [{"token_id": "...", "outcome": "Yes"}, ...]}, ...}
func Decode(r io.Reader) ([]domain.MarketEntry, error) {
	var raw map[string]domain.MarketEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("market: decode lookup: %w", err)
	}
	entries := make([]domain.MarketEntry, 0, len(raw))
	for id, e := range raw {
		e.ConditionID = id
		entries = append(entries, e)
	}
	return entries, nil
}

// Load reads the lookup from a local path, or from object storage when path
// is an s3:// URL. blobs may be nil for local paths.
func Load(ctx context.Context, path string, blobs domain.BlobReader, logger *slog.Logger) (*Lookup, error) {
	var rc io.ReadCloser
	if key, ok := strings.CutPrefix(path, "s3://"); ok {
		if blobs == nil {
			return nil, fmt.Errorf("market: load %s: object storage is not configured", path)
		}
		// s3://bucket/key: the client is already bound to a bucket.
		if _, rest, found := strings.Cut(key, "/"); found {
			key = rest
		}
		r, err := blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("market: load %s: %w", path, err)
		}
		rc = r
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("market: load %s: %w", path, err)
		}
		rc = f
	}
	defer rc.Close()

	entries, err := Decode(rc)
	if err != nil {
		return nil, err
	}
	return NewLookup(entries, logger), nil
}
