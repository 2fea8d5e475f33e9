package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestClient connects to the Redis named by POLYARB_TEST_REDIS_ADDR and
// skips the test when it is unset.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("POLYARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLYARB_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	pc := NewPriceCache(c, time.Minute, nil)
	id := "test-" + uuid.NewString()
	t.Cleanup(func() { c.Underlying().Del(context.Background(), priceKey(id)) })

	var calls int
	fetch := func(context.Context, string) (float64, error) {
		calls++
		return 0.61, nil
	}
	for i := 0; i < 2; i++ {
		p, err := pc.GetOrFetch(context.Background(), id, fetch)
		if err != nil || p != 0.61 {
			t.Fatalf("GetOrFetch = %v, %v", p, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

func TestPriceCacheFailureNotStored(t *testing.T) {
	c := newTestClient(t)
	pc := NewPriceCache(c, time.Minute, nil)
	id := "test-" + uuid.NewString()

	boom := errors.New("boom")
	if _, err := pc.GetOrFetch(context.Background(), id, func(context.Context, string) (float64, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	n, err := c.Underlying().Exists(context.Background(), priceKey(id)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("failed fetch wrote a cache entry")
	}
}

func TestLockExclusive(t *testing.T) {
	c := newTestClient(t)
	lm := NewLockManager(c)
	key := "test-" + uuid.NewString()

	unlock, err := lm.Acquire(context.Background(), key, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := lm.Acquire(context.Background(), key, 5*time.Second); err == nil {
		t.Fatal("second Acquire should fail while held")
	}
	unlock()
	unlock()
	again, err := lm.Acquire(context.Background(), key, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}
	again()
}
