package source

import (
	"context"
	"fmt"
	"os"

	"github.com/alanyoungcy/polyarb/internal/bookfile"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Book resolves legs from persisted order-book snapshots. One Book serves a
// single source: ask, bid or mid.
type Book struct {
	dir  string
	kind domain.PriceSource
}

var _ domain.PriceAdapter = (*Book)(nil)

// NewBook creates a Book adapter reading snapshots from dir. kind must be
// SourceAsk, SourceBid or SourceMid.
func NewBook(dir string, kind domain.PriceSource) (*Book, error) {
	switch kind {
	case domain.SourceAsk, domain.SourceBid, domain.SourceMid:
	default:
		return nil, fmt.Errorf("source: book adapter cannot serve %q", kind)
	}
	return &Book{dir: dir, kind: kind}, nil
}

// Resolve reads the instrument's snapshot and extracts the requested price.
// Missing files and empty sides wrap domain.ErrNotFound.
func (b *Book) Resolve(_ context.Context, inst domain.Instrument) (domain.Quote, error) {
	path := bookfile.Path(b.dir, inst.MarketSlug, inst.Outcome)
	rows, err := bookfile.Read(path)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("source: %s: %w", b.kind, err)
	}

	var q domain.Quote
	if info, err := os.Stat(path); err == nil {
		q.ObservedAt = info.ModTime()
	}

	switch b.kind {
	case domain.SourceAsk, domain.SourceBid:
		pick := bookfile.BestAsk
		if b.kind == domain.SourceBid {
			pick = bookfile.BestBid
		}
		row, ok := pick(rows)
		if !ok {
			return domain.Quote{}, fmt.Errorf("source: %s: no %s rows in %s: %w", b.kind, b.kind, path, domain.ErrNotFound)
		}
		q.Price = row.Price
		if row.Size >= 0 {
			size := row.Size
			q.Size = &size
		}
	case domain.SourceMid:
		mid, ok := bookfile.Mid(rows)
		if !ok {
			return domain.Quote{}, fmt.Errorf("source: mid: one side empty in %s: %w", path, domain.ErrNotFound)
		}
		q.Price = mid
	}
	return q, nil
}
