package domain

import (
	"context"
	"time"
)

// ReportStore persists batch reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r Report) error
	LatestReport(ctx context.Context) (Report, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// FillStore provides the user's fill history.
type FillStore interface {
	// LatestFill returns the most recent fill for the pair, or ErrNotFound.
	LatestFill(ctx context.Context, userID, marketSlug, outcome string) (Fill, error)
}

// FillImporter loads exported fill history into a FillStore backend.
type FillImporter interface {
	// LatestFillTime returns the newest stored fill time for the user, or the
	// zero time when there is none.
	LatestFillTime(ctx context.Context, userID string) (time.Time, error)
	InsertFills(ctx context.Context, fills []Fill) error
}
