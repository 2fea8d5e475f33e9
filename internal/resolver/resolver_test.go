package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type mapLookup map[string]string

func (m mapLookup) Resolve(slug, outcome string) (domain.Instrument, error) {
	id, ok := m[slug+"|"+domain.NormalizeOutcome(outcome)]
	if !ok {
		return domain.Instrument{}, domain.ErrLookupMiss
	}
	return domain.Instrument{MarketSlug: slug, Outcome: outcome, InstrumentID: id}, nil
}

type adapterFunc func(ctx context.Context, inst domain.Instrument) (domain.Quote, error)

func (f adapterFunc) Resolve(ctx context.Context, inst domain.Instrument) (domain.Quote, error) {
	return f(ctx, inst)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveLeg(t *testing.T) {
	lookup := mapLookup{"m|yes": "tok-yes"}
	adapters := map[domain.PriceSource]domain.PriceAdapter{
		domain.SourceAsk: adapterFunc(func(_ context.Context, inst domain.Instrument) (domain.Quote, error) {
			if inst.InstrumentID != "tok-yes" {
				t.Errorf("instrument = %q", inst.InstrumentID)
			}
			return domain.Quote{Price: 0.52}, nil
		}),
		domain.SourceBid: adapterFunc(func(context.Context, domain.Instrument) (domain.Quote, error) {
			return domain.Quote{}, domain.ErrNotFound
		}),
		domain.SourceMid: adapterFunc(func(context.Context, domain.Instrument) (domain.Quote, error) {
			return domain.Quote{Price: math.NaN()}, nil
		}),
		domain.SourceActual: adapterFunc(func(context.Context, domain.Instrument) (domain.Quote, error) {
			panic("boom")
		}),
		domain.SourceLive: adapterFunc(func(context.Context, domain.Instrument) (domain.Quote, error) {
			return domain.Quote{Price: 1.4}, nil
		}),
	}
	r := New(lookup, adapters, quiet())

	tests := []struct {
		name    string
		leg     domain.TradeLeg
		src     domain.PriceSource
		price   float64
		wantErr error
	}{
		{name: "resolved", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "YES"}, src: domain.SourceAsk, price: 0.52},
		{name: "out of range passes through", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, src: domain.SourceLive, price: 1.4},
		{name: "lookup miss", leg: domain.TradeLeg{MarketSlug: "zzz", Outcome: "Yes"}, src: domain.SourceAsk, wantErr: domain.ErrLookupMiss},
		{name: "adapter not found", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, src: domain.SourceBid, wantErr: domain.ErrAdapterUnavailable},
		{name: "nan is coercion", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, src: domain.SourceMid, wantErr: domain.ErrCoercion},
		{name: "panic", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, src: domain.SourceActual, wantErr: domain.ErrAdapterUnavailable},
		{name: "no adapter", leg: domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, src: domain.PriceSource("other"), wantErr: domain.ErrAdapterUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveLeg(context.Background(), tt.leg, tt.src)
			if tt.wantErr != nil {
				if got.Available() || !errors.Is(got.Err, tt.wantErr) {
					t.Fatalf("Err = %v, want %v", got.Err, tt.wantErr)
				}
				return
			}
			if !got.Available() {
				t.Fatalf("unexpected err: %v", got.Err)
			}
			if got.Quote.Price != tt.price {
				t.Fatalf("price = %v, want %v", got.Quote.Price, tt.price)
			}
		})
	}
}

func TestResolveLegTimeout(t *testing.T) {
	lookup := mapLookup{"m|yes": "tok"}
	slow := adapterFunc(func(ctx context.Context, _ domain.Instrument) (domain.Quote, error) {
		select {
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return domain.Quote{Price: 0.5}, nil
		}
	})
	r := New(lookup, map[domain.PriceSource]domain.PriceAdapter{domain.SourceLive: slow}, quiet(),
		WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := r.ResolveLeg(context.Background(), domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, domain.SourceLive)
	if !errors.Is(got.Err, domain.ErrAdapterUnavailable) || !errors.Is(got.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", got.Err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not applied")
	}
}

func TestResolveLegTimeoutIgnoredByAdapter(t *testing.T) {
	lookup := mapLookup{"m|yes": "tok"}
	stubborn := adapterFunc(func(context.Context, domain.Instrument) (domain.Quote, error) {
		time.Sleep(500 * time.Millisecond)
		return domain.Quote{Price: 0.5}, nil
	})
	r := New(lookup, map[domain.PriceSource]domain.PriceAdapter{domain.SourceAsk: stubborn}, quiet(),
		WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := r.ResolveLeg(context.Background(), domain.TradeLeg{MarketSlug: "m", Outcome: "Yes"}, domain.SourceAsk)
	elapsed := time.Since(start)

	if got.Available() {
		t.Fatalf("leg resolved after its deadline: %+v", got.Quote)
	}
	if !errors.Is(got.Err, domain.ErrAdapterUnavailable) || !errors.Is(got.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", got.Err)
	}
	if elapsed > 250*time.Millisecond {
		t.Fatalf("resolver waited %s for an adapter that ignores ctx", elapsed)
	}
}
