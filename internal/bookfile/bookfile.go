// Package bookfile reads and writes per-instrument order-book snapshot CSVs.
//
// A snapshot has the header market_id,asset_id,price,size,side with side one
// of "ask" or "bid". Readers only require price and side; size is optional.
package bookfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/coerce"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/fsutil"
)

var header = []string{"market_id", "asset_id", "price", "size", "side"}

// FileName is the deterministic snapshot name for a market slug and outcome.
func FileName(marketSlug, outcome string) string {
	clean := func(s string) string { return strings.NewReplacer("/", "-", `\`, "-").Replace(s) }
	return clean(marketSlug) + "_" + clean(outcome) + ".csv"
}

// Path joins dir and FileName.
func Path(dir, marketSlug, outcome string) string {
	return filepath.Join(dir, FileName(marketSlug, outcome))
}

// Write atomically replaces the snapshot at path with book. Asks are written
// before bids, each in exchange order.
func Write(path string, book domain.OrderBook) error {
	return fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		write := func(levels []domain.PriceLevel, side domain.BookSide) error {
			for _, lvl := range levels {
				rec := []string{
					book.MarketID,
					book.AssetID,
					strconv.FormatFloat(lvl.Price, 'f', -1, 64),
					strconv.FormatFloat(lvl.Size, 'f', -1, 64),
					string(side),
				}
				if err := cw.Write(rec); err != nil {
					return err
				}
			}
			return nil
		}
		if err := write(book.Asks, domain.SideAsk); err != nil {
			return err
		}
		if err := write(book.Bids, domain.SideBid); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// Read loads all rows of a snapshot. A missing file wraps domain.ErrNotFound
// and a non-numeric price wraps domain.ErrCoercion. Rows with an unknown side
// are ignored.
func Read(path string) ([]domain.BookRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bookfile: %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("bookfile: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	head, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("bookfile: read header %s: %w", path, err)
	}
	col := make(map[string]int, len(head))
	for i, h := range head {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	priceIdx, ok1 := col["price"]
	sideIdx, ok2 := col["side"]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("bookfile: %s: header needs price and side columns", path)
	}
	sizeIdx, hasSize := col["size"]
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []domain.BookRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bookfile: read %s: %w", path, err)
		}
		if sideIdx >= len(rec) || priceIdx >= len(rec) {
			continue
		}
		side := domain.BookSide(strings.ToLower(strings.TrimSpace(rec[sideIdx])))
		if side != domain.SideAsk && side != domain.SideBid {
			continue
		}
		price, err := coerce.String(rec[priceIdx])
		if err != nil {
			return nil, fmt.Errorf("bookfile: %s line %d: %w", path, line, err)
		}
		row := domain.BookRow{
			MarketID: field(rec, "market_id"),
			AssetID:  field(rec, "asset_id"),
			Price:    price,
			Size:     -1,
			Side:     side,
		}
		if hasSize && sizeIdx < len(rec) {
			if size, err := coerce.String(rec[sizeIdx]); err == nil {
				row.Size = size
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BestAsk returns the lowest-priced ask row. Ties keep the earliest row.
func BestAsk(rows []domain.BookRow) (domain.BookRow, bool) {
	return best(rows, domain.SideAsk, func(a, b float64) bool { return a < b })
}

// BestBid returns the highest-priced bid row. Ties keep the earliest row.
func BestBid(rows []domain.BookRow) (domain.BookRow, bool) {
	return best(rows, domain.SideBid, func(a, b float64) bool { return a > b })
}

// Mid returns (best ask + best bid) / 2 when both sides are present.
func Mid(rows []domain.BookRow) (float64, bool) {
	ask, ok1 := BestAsk(rows)
	bid, ok2 := BestBid(rows)
	if !ok1 || !ok2 {
		return 0, false
	}
	return (ask.Price + bid.Price) / 2, true
}

func best(rows []domain.BookRow, side domain.BookSide, better func(a, b float64) bool) (domain.BookRow, bool) {
	var (
		out   domain.BookRow
		found bool
	)
	for _, r := range rows {
		if r.Side != side {
			continue
		}
		if !found || better(r.Price, out.Price) {
			out, found = r, true
		}
	}
	return out, found
}
