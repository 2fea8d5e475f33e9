package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/bookfile"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/market"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testLookup() *market.Lookup {
	return market.NewLookup([]domain.MarketEntry{
		{ConditionID: "0x1", MarketSlug: "a", Tokens: []domain.Token{{TokenID: "1", Outcome: "Yes"}, {TokenID: "2", Outcome: "No"}}},
		{ConditionID: "0x2", MarketSlug: "b", Tokens: []domain.Token{{TokenID: "3", Outcome: "Yes"}, {TokenID: "4", Outcome: "No"}}},
	}, quiet())
}

type fakeClob struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
}

func (f *fakeClob) record(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	return f.failing[id]
}

func (f *fakeClob) GetOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	if f.record(tokenID) {
		return domain.OrderBook{}, domain.ErrUnavailable
	}
	return domain.OrderBook{
		MarketID: "0x",
		AssetID:  tokenID,
		Asks:     []domain.PriceLevel{{Price: 0.6, Size: 10}},
		Bids:     []domain.PriceLevel{{Price: 0.4, Size: 5}},
	}, nil
}

func (f *fakeClob) GetSpread(_ context.Context, tokenID string) (domain.Spread, error) {
	if f.record(tokenID) {
		return domain.Spread{}, domain.ErrUnavailable
	}
	return domain.Spread{AssetID: tokenID, Spread: 0.02}, nil
}

func TestRefreshWritesAndSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	clob := &fakeClob{failing: map[string]bool{"3": true}}
	r := NewBookRefresher(clob, dir, quiet())

	legs := []domain.TradeLeg{
		{MarketSlug: "a", Outcome: "yes"},
		{MarketSlug: "b", Outcome: "Yes"},
		{MarketSlug: "missing", Outcome: "Yes"},
	}
	n, err := r.Refresh(context.Background(), testLookup(), legs)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("written = %d, want 1", n)
	}

	rows, err := bookfile.Read(bookfile.Path(dir, "a", "Yes"))
	if err != nil {
		t.Fatalf("read written book: %v", err)
	}
	if best, ok := bookfile.BestAsk(rows); !ok || best.Price != 0.6 {
		t.Fatalf("best ask = %+v %v", best, ok)
	}
	if _, err := bookfile.Read(bookfile.Path(dir, "b", "Yes")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed fetch should leave no file, err = %v", err)
	}
}

func TestSpreadSampleSharesFetches(t *testing.T) {
	clob := &fakeClob{failing: map[string]bool{"4": true}}
	s := NewSpreadSampler(clob, quiet())
	strategies := []domain.Strategy{
		{Name: "s1", Method: domain.MethodAllNo, Positions: []domain.TradeLeg{{MarketSlug: "a", Outcome: "No"}, {MarketSlug: "b", Outcome: "No"}}},
		{Name: "s2", Method: domain.MethodAllNo, Positions: []domain.TradeLeg{{MarketSlug: "a", Outcome: "No"}}},
	}

	got := s.Sample(context.Background(), testLookup(), strategies)
	if got["s1"]["a (No)"] != 0.02 || got["s2"]["a (No)"] != 0.02 {
		t.Fatalf("spreads = %v", got)
	}
	if _, ok := got["s1"]["b (No)"]; ok {
		t.Fatal("failed spread should be omitted")
	}
	if clob.calls["2"] != 1 {
		t.Fatalf("instrument 2 fetched %d times, want 1", clob.calls["2"])
	}
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	var passes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(func(context.Context) error {
		if passes.Add(1) >= 2 {
			cancel()
		}
		return errors.New("boom")
	}, 10*time.Millisecond, nil, time.Second, quiet())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if passes.Load() < 2 {
		t.Fatalf("passes = %d, failed pass should not stop the loop", passes.Load())
	}
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	var passes atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := NewScheduler(func(context.Context) error {
		passes.Add(1)
		return nil
	}, 5*time.Millisecond, heldLocks{}, time.Second, quiet())

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if passes.Load() != 0 {
		t.Fatalf("passes = %d, want 0 while lock is held", passes.Load())
	}
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	s := NewScheduler(func(context.Context) error { return nil }, 0, nil, 0, quiet())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

// expiringLocks behaves like SET NX PX: a key is free once its ttl passes.
type expiringLocks struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func (l *expiringLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expires == nil {
		l.expires = make(map[string]time.Time)
	}
	if time.Now().Before(l.expires[key]) {
		return nil, domain.ErrLockHeld
	}
	l.expires[key] = time.Now().Add(ttl)
	return func() {
		l.mu.Lock()
		delete(l.expires, key)
		l.mu.Unlock()
	}, nil
}

func TestSchedulersShareOnePassPerInterval(t *testing.T) {
	const interval = 200 * time.Millisecond
	locks := &expiringLocks{}
	var passes atomic.Int32
	pass := func(context.Context) error {
		passes.Add(1)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*interval+interval/4)
	defer cancel()

	a := NewScheduler(pass, interval, locks, DefaultLockTTL(interval), quiet())
	b := NewScheduler(pass, interval, locks, DefaultLockTTL(interval), quiet())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = a.Run(ctx) }()
	time.Sleep(interval / 4)
	go func() { defer wg.Done(); _ = b.Run(ctx) }()
	wg.Wait()

	// Ticks at 0, 200ms and 400ms on the first replica; the second one is
	// always inside the lock window.
	if got := passes.Load(); got != 3 {
		t.Fatalf("passes = %d, want 3 across both replicas", got)
	}
}

func TestNewSchedulerClampsLockTTL(t *testing.T) {
	s := NewScheduler(func(context.Context) error { return nil }, time.Minute, nil, time.Hour, quiet())
	if s.lockTTL != DefaultLockTTL(time.Minute) {
		t.Fatalf("lockTTL = %s", s.lockTTL)
	}
}
