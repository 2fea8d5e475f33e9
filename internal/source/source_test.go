package source

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/cache/memory"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

type fakeClob struct {
	calls  int
	prices map[string]float64
	err    error
}

func (f *fakeClob) GetLastTradePrice(_ context.Context, tokenID string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	p, ok := f.prices[tokenID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return p, nil
}

func TestLiveUsesCacheKeyedByInstrument(t *testing.T) {
	clob := &fakeClob{prices: map[string]float64{"111": 0.47}}
	live := NewLive(clob, memory.NewPriceCache(time.Minute))

	yes := domain.Instrument{MarketSlug: "m", Outcome: "Yes", InstrumentID: "111"}
	no := domain.Instrument{MarketSlug: "m", Outcome: "No", InstrumentID: "111"}
	for _, inst := range []domain.Instrument{yes, no, yes} {
		q, err := live.Resolve(context.Background(), inst)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if q.Price != 0.47 || q.Size != nil {
			t.Fatalf("quote = %+v", q)
		}
	}
	if clob.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", clob.calls)
	}
}

func TestLiveFailurePropagates(t *testing.T) {
	clob := &fakeClob{err: domain.ErrUnavailable}
	live := NewLive(clob, memory.NewPriceCache(time.Minute))
	_, err := live.Resolve(context.Background(), domain.Instrument{InstrumentID: "x"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func writeBook(t *testing.T, dir, slug, outcome, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, slug+"_"+outcome+".csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBookSources(t *testing.T) {
	dir := t.TempDir()
	writeBook(t, dir, "m", "Yes", "market_id,asset_id,price,size,side\n"+
		"c,1,0.52,10,ask\nc,1,0.55,20,ask\nc,1,0.40,30,bid\n")
	inst := domain.Instrument{MarketSlug: "m", Outcome: "Yes", InstrumentID: "1"}

	tests := []struct {
		kind     domain.PriceSource
		price    float64
		size     float64
		sizeless bool
	}{
		{kind: domain.SourceAsk, price: 0.52, size: 10},
		{kind: domain.SourceBid, price: 0.40, size: 30},
		{kind: domain.SourceMid, price: 0.46, sizeless: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			b, err := NewBook(dir, tt.kind)
			if err != nil {
				t.Fatal(err)
			}
			q, err := b.Resolve(context.Background(), inst)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if math.Abs(q.Price-tt.price) > 1e-12 {
				t.Fatalf("price = %v, want %v", q.Price, tt.price)
			}
			if tt.sizeless {
				if q.Size != nil {
					t.Fatalf("mid should have no size, got %v", *q.Size)
				}
				return
			}
			if q.Size == nil || *q.Size != tt.size {
				t.Fatalf("size = %v, want %v", q.Size, tt.size)
			}
		})
	}
}

func TestBookMissing(t *testing.T) {
	dir := t.TempDir()
	writeBook(t, dir, "asks-only", "No", "price,size,side\n0.9,1,ask\n")

	bid, _ := NewBook(dir, domain.SourceBid)
	if _, err := bid.Resolve(context.Background(), domain.Instrument{MarketSlug: "asks-only", Outcome: "No"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty side err = %v", err)
	}
	ask, _ := NewBook(dir, domain.SourceAsk)
	if _, err := ask.Resolve(context.Background(), domain.Instrument{MarketSlug: "nothing", Outcome: "Yes"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing file err = %v", err)
	}
	if _, err := NewBook(dir, domain.SourceLive); err == nil {
		t.Fatal("book adapter must reject live")
	}
}

const fillsCSV = `market_slug,outcome,price_paid_per_token,shares,timeStamp_erc1155
harris-wins,Yes,0.50,100,2024-10-01 10:00:00
harris-wins,Yes,0.55,40,2024-10-03 09:00:00
harris-wins,No,0.45,10,2024-10-05 09:00:00
harris-wins,yes,0.58,12,2024-10-02 12:00:00
other,Yes,0.10,1,2024-11-01 00:00:00
`

func TestFillsLatestMatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "{user_id}_enriched_transactions.csv")
	if err := os.WriteFile(filepath.Join(dir, "alice_enriched_transactions.csv"), []byte(fillsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	fills := NewFills(NewCSVFillStore(path), "alice")

	q, err := fills.Resolve(context.Background(), domain.Instrument{MarketSlug: "harris-wins", Outcome: "Yes"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if q.Price != 0.55 || q.Size == nil || *q.Size != 40 {
		t.Fatalf("quote = %+v", q)
	}
	if !q.ObservedAt.Equal(time.Date(2024, 10, 3, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("observed_at = %v", q.ObservedAt)
	}

	if _, err := fills.Resolve(context.Background(), domain.Instrument{MarketSlug: "never-traded", Outcome: "Yes"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no rows err = %v", err)
	}
	bob := NewFills(NewCSVFillStore(path), "bob")
	if _, err := bob.Resolve(context.Background(), domain.Instrument{MarketSlug: "harris-wins", Outcome: "Yes"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestFillsBadPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.csv")
	body := "market_slug,outcome,price_paid_per_token,shares,timeStamp_erc1155\nm,Yes,n/a,1,1700000000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewCSVFillStore(path).LatestFill(context.Background(), "", "m", "Yes")
	if !errors.Is(err, domain.ErrCoercion) {
		t.Fatalf("err = %v, want ErrCoercion", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 10, 3, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-10-03T09:00:00Z", "2024-10-03 09:00:00", "2024-10-03T09:00:00", "1727946000"} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseTimestamp(%q) = %v", in, got)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}

type fakeImporter struct {
	latest   time.Time
	inserted []domain.Fill
}

func (f *fakeImporter) LatestFillTime(context.Context, string) (time.Time, error) {
	return f.latest, nil
}

func (f *fakeImporter) InsertFills(_ context.Context, fills []domain.Fill) error {
	f.inserted = append(f.inserted, fills...)
	return nil
}

func TestImportFillsSkipsStoredHistory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alice.csv"), []byte(fillsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewCSVFillStore(filepath.Join(dir, "{user_id}.csv"))

	dst := &fakeImporter{}
	n, err := ImportFills(context.Background(), src, "alice", dst)
	if err != nil {
		t.Fatalf("ImportFills: %v", err)
	}
	if n != 5 || len(dst.inserted) != 5 {
		t.Fatalf("first import = %d rows, stored %d", n, len(dst.inserted))
	}
	if f := dst.inserted[1]; f.UserID != "alice" || f.MarketSlug != "harris-wins" || f.PricePerToken != 0.55 || f.Shares != 40 {
		t.Fatalf("row 2 = %+v", f)
	}

	dst = &fakeImporter{latest: time.Date(2024, 10, 5, 9, 0, 0, 0, time.UTC)}
	n, err = ImportFills(context.Background(), src, "alice", dst)
	if err != nil {
		t.Fatalf("ImportFills: %v", err)
	}
	if n != 1 || dst.inserted[0].MarketSlug != "other" {
		t.Fatalf("incremental import = %d %+v", n, dst.inserted)
	}

	if _, err := ImportFills(context.Background(), src, "bob", &fakeImporter{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing export err = %v", err)
	}
}
