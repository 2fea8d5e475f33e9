// Package memory implements an in-process, TTL-bounded live price cache.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// DefaultTTL is how long a live price stays fresh.
const DefaultTTL = 60 * time.Second

type entry struct {
	price    float64
	cachedAt time.Time
}

// PriceCache memoizes live prices per instrument id. Entries are replaced as
// whole values under a lock, so readers never see a torn entry. Concurrent
// misses for the same instrument share one fetch.
type PriceCache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

var _ domain.PriceCache = (*PriceCache)(nil)

// Option customizes a PriceCache.
type Option func(*PriceCache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *PriceCache) { c.now = now }
}

// WithMetrics records hit/miss counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *PriceCache) { c.metrics = m }
}

// NewPriceCache creates an empty cache. A non-positive ttl uses DefaultTTL.
func NewPriceCache(ttl time.Duration, opts ...Option) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &PriceCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached price for instrumentID when it is younger
// than the TTL, otherwise calls fetch and stores its result. A failed fetch
// leaves the cache untouched so the next call retries.
func (c *PriceCache) GetOrFetch(ctx context.Context, instrumentID string, fetch domain.FetchFunc) (float64, error) {
	if p, ok := c.fresh(instrumentID); ok {
		c.metrics.RecordCache("memory", "hit")
		return p, nil
	}

	v, err, _ := c.group.Do(instrumentID, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if p, ok := c.fresh(instrumentID); ok {
			return p, nil
		}
		p, err := fetch(ctx, instrumentID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[instrumentID] = entry{price: p, cachedAt: c.now()}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		c.metrics.RecordCache("memory", "error")
		return 0, fmt.Errorf("memory: fetch %s: %w", instrumentID, err)
	}
	c.metrics.RecordCache("memory", "miss")
	return v.(float64), nil
}

// size returns the number of stored entries, fresh or not.
func (c *PriceCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PriceCache) fresh(instrumentID string) (float64, bool) {
	c.mu.RLock()
	e, ok := c.entries[instrumentID]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.cachedAt) >= c.ttl {
		return 0, false
	}
	return e.price, true
}
