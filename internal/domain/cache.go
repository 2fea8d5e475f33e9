package domain

import (
	"context"
	"time"
)

// FetchFunc fetches a fresh live price for an instrument.
type FetchFunc func(ctx context.Context, instrumentID string) (float64, error)

// PriceCache memoizes live prices for a bounded time. A failed fetch is
// never cached.
type PriceCache interface {
	GetOrFetch(ctx context.Context, instrumentID string, fetch FetchFunc) (float64, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ReportChannel is the pub/sub channel carrying serialized reports.
const ReportChannel = "arb:reports"

// SignalBus provides pub/sub fan-out of serialized reports.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
