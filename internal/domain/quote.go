package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PriceSource names one way of pricing a leg.
type PriceSource string

const (
	SourceLive   PriceSource = "live"
	SourceAsk    PriceSource = "ask"
	SourceMid    PriceSource = "mid"
	SourceBid    PriceSource = "bid"
	SourceActual PriceSource = "actual"
)

// DefaultSources is the source set evaluated when none is configured.
func DefaultSources() []PriceSource {
	return []PriceSource{SourceLive, SourceAsk, SourceMid, SourceBid, SourceActual}
}

// ParsePriceSource parses a case-insensitive source name.
func ParsePriceSource(s string) (PriceSource, error) {
	src := PriceSource(strings.ToLower(strings.TrimSpace(s)))
	switch src {
	case SourceLive, SourceAsk, SourceMid, SourceBid, SourceActual:
		return src, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Quote is a price observation for one instrument from one source. Size is
// nil when the source does not report one (live quotes, mid prices).
type Quote struct {
	Price      float64
	Size       *float64
	ObservedAt time.Time
}

// PriceAdapter resolves a quote for an instrument under a single source.
// A missing quote is reported as an error wrapping ErrNotFound or
// ErrAdapterUnavailable; a non-numeric payload wraps ErrCoercion.
type PriceAdapter interface {
	Resolve(ctx context.Context, inst Instrument) (Quote, error)
}
