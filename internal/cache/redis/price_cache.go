package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// PriceCache implements domain.PriceCache with Redis hashes so that several
// engine processes share live prices. Each instrument lives at
// "price:{instrumentID}" with fields "price" and "ts" (Unix nanoseconds),
// written in one HSET so an entry is always replaced whole. Keys also carry a
// Redis TTL so abandoned entries disappear on their own.
type PriceCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache with the given freshness window.
func NewPriceCache(c *Client, ttl time.Duration, m *metrics.Metrics) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl, now: time.Now, metrics: m}
}

func priceKey(instrumentID string) string {
	return "price:" + instrumentID
}

// GetOrFetch returns the stored price when it is younger than the TTL,
// otherwise fetches and stores a fresh one. Redis read errors fall through to
// a fetch; a failed fetch writes nothing.
func (pc *PriceCache) GetOrFetch(ctx context.Context, instrumentID string, fetch domain.FetchFunc) (float64, error) {
	price, ts, err := pc.get(ctx, instrumentID)
	if err == nil && pc.now().Sub(ts) < pc.ttl {
		pc.metrics.RecordCache("redis", "hit")
		return price, nil
	}

	price, err = fetch(ctx, instrumentID)
	if err != nil {
		pc.metrics.RecordCache("redis", "error")
		return 0, fmt.Errorf("redis: fetch %s: %w", instrumentID, err)
	}
	pc.metrics.RecordCache("redis", "miss")

	// A failed write only costs a refetch next time.
	_ = pc.set(ctx, instrumentID, price, pc.now())
	return price, nil
}

func (pc *PriceCache) set(ctx context.Context, instrumentID string, price float64, ts time.Time) error {
	key := priceKey(instrumentID)
	_, err := pc.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"price": strconv.FormatFloat(price, 'f', -1, 64),
			"ts":    strconv.FormatInt(ts.UnixNano(), 10),
		})
		pipe.PExpire(ctx, key, pc.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", instrumentID, err)
	}
	return nil
}

// get returns domain.ErrNotFound when the key is absent or incomplete.
func (pc *PriceCache) get(ctx context.Context, instrumentID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(instrumentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", instrumentID, err)
	}
	priceStr, ok1 := vals["price"]
	tsStr, ok2 := vals["ts"]
	if !ok1 || !ok2 {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", instrumentID, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", instrumentID, err)
	}
	return price, time.Unix(0, tsNano), nil
}
