package domain

import "time"

// Fill is one of the user's own past transactions.
type Fill struct {
	UserID        string
	MarketSlug    string
	Outcome       string
	PricePerToken float64
	Shares        float64
	Timestamp     time.Time
}
