package bookfile

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAskBidMidSelection(t *testing.T) {
	path := writeCSV(t, "market_id,asset_id,price,size,side\n"+
		"m,a,0.52,10,ask\n"+
		"m,a,0.55,20,ask\n"+
		"m,a,0.40,30,bid\n")
	rows, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	ask, ok := BestAsk(rows)
	if !ok || ask.Price != 0.52 || ask.Size != 10 {
		t.Fatalf("ask = %+v, %v", ask, ok)
	}
	bid, ok := BestBid(rows)
	if !ok || bid.Price != 0.40 || bid.Size != 30 {
		t.Fatalf("bid = %+v, %v", bid, ok)
	}
	mid, ok := Mid(rows)
	if !ok || math.Abs(mid-0.46) > 1e-12 {
		t.Fatalf("mid = %v, %v", mid, ok)
	}
}

func TestTiesKeepFirstRow(t *testing.T) {
	rows := []domain.BookRow{
		{Price: 0.5, Size: 1, Side: domain.SideAsk},
		{Price: 0.5, Size: 2, Side: domain.SideAsk},
		{Price: 0.3, Size: 3, Side: domain.SideBid},
		{Price: 0.3, Size: 4, Side: domain.SideBid},
	}
	if ask, _ := BestAsk(rows); ask.Size != 1 {
		t.Fatalf("ask tie picked size %v, want 1", ask.Size)
	}
	if bid, _ := BestBid(rows); bid.Size != 3 {
		t.Fatalf("bid tie picked size %v, want 3", bid.Size)
	}
}

func TestEmptySides(t *testing.T) {
	path := writeCSV(t, "price,size,side\n0.6,5,ask\n")
	rows, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := BestBid(rows); ok {
		t.Fatal("bid should be absent")
	}
	if _, ok := Mid(rows); ok {
		t.Fatal("mid needs both sides")
	}
	if _, ok := BestAsk(rows); !ok {
		t.Fatal("ask should be present")
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.csv")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing file err = %v", err)
	}
	bad := writeCSV(t, "price,size,side\nabc,1,ask\n")
	if _, err := Read(bad); !errors.Is(err, domain.ErrCoercion) {
		t.Fatalf("bad price err = %v", err)
	}
	noSide := writeCSV(t, "price,size\n0.5,1\n")
	if _, err := Read(noSide); err == nil {
		t.Fatal("expected header error")
	}
}

func TestWriteThenRead(t *testing.T) {
	path := Path(t.TempDir(), "harris-wins", "Yes")
	if filepath.Base(path) != "harris-wins_Yes.csv" {
		t.Fatalf("file name = %s", filepath.Base(path))
	}
	book := domain.OrderBook{
		MarketID: "0xcond",
		AssetID:  "333",
		Asks:     []domain.PriceLevel{{Price: 0.61, Size: 5}, {Price: 0.6, Size: 7}},
		Bids:     []domain.PriceLevel{{Price: 0.58, Size: 9}},
	}
	if err := Write(path, book); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].MarketID != "0xcond" || rows[0].AssetID != "333" {
		t.Fatalf("ids = %+v", rows[0])
	}
	ask, _ := BestAsk(rows)
	if ask.Price != 0.6 || ask.Size != 7 {
		t.Fatalf("ask = %+v", ask)
	}
}
