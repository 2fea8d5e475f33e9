package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyarb/internal/coerce"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// flexNumber keeps a JSON value that the CLOB sends either as a string or as
// a number. Coercion happens later so that malformed values surface as
// domain.ErrCoercion rather than as decode errors.
type flexNumber struct {
	set bool
	v   any
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.v = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(&f.v)
}

// Present reports whether the field appeared in the payload.
func (f flexNumber) Present() bool { return f.set }

// Value returns the raw decoded value (string, json.Number, bool or nil).
func (f flexNumber) Value() any { return f.v }

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APILastTradePrice is the /last-trade-price response.
type APILastTradePrice struct {
	Price flexNumber `json:"price"`
	Side  string     `json:"side"`
}

// APISpread is the /spread response.
type APISpread struct {
	Spread flexNumber `json:"spread"`
}

// APIPriceLevel is one level of an /book response.
type APIPriceLevel struct {
	Price flexNumber `json:"price"`
	Size  flexNumber `json:"size"`
}

// APIBook is the /book response.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// ToDomainBook converts an APIBook into a domain.OrderBook. Level order is
// preserved. A level with a non-numeric price or size fails the whole book.
func (b *APIBook) ToDomainBook() (domain.OrderBook, error) {
	book := domain.OrderBook{
		MarketID: b.Market,
		AssetID:  b.AssetID,
	}

	var err error
	if book.Bids, err = toLevels(b.Bids); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	if book.Asks, err = toLevels(b.Asks); err != nil {
		return domain.OrderBook{}, fmt.Errorf("asks: %w", err)
	}

	// The CLOB sends millisecond timestamps as strings.
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms)
	} else if t, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
		book.Timestamp = t
	} else {
		book.Timestamp = time.Now()
	}

	return book, nil
}

func toLevels(in []APIPriceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err := coerce.Float(lvl.Price.Value())
		if err != nil {
			return nil, err
		}
		s, err := coerce.Float(lvl.Size.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out, nil
}
