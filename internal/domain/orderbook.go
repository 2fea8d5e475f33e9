package domain

import "time"

// PriceLevel is a single price level in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a point-in-time book for one instrument as returned by the
// exchange. Level order is whatever the exchange sent.
type OrderBook struct {
	MarketID  string
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BookSide is the side label written to order-book snapshot rows.
type BookSide string

const (
	SideAsk BookSide = "ask"
	SideBid BookSide = "bid"
)

// BookRow is one row of a persisted order-book snapshot.
type BookRow struct {
	MarketID string
	AssetID  string
	Price    float64
	Size     float64
	Side     BookSide
}

// Spread is the exchange-reported bid/ask spread for one instrument.
type Spread struct {
	AssetID string
	Spread  float64
}
