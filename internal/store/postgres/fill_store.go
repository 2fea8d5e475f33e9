package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var (
	_ domain.FillStore    = (*FillStore)(nil)
	_ domain.FillImporter = (*FillStore)(nil)
)

// FillStore reads the user_fills table, an alternative to the enriched
// transactions CSV.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// LatestFill returns the newest fill for the pair. Outcome matching is
// case-insensitive; ties on timestamp go to the earliest inserted row.
func (s *FillStore) LatestFill(ctx context.Context, userID, marketSlug, outcome string) (domain.Fill, error) {
	const query = `
		SELECT user_id, market_slug, outcome, price_per_token, shares, filled_at
		FROM user_fills
		WHERE user_id = $1 AND market_slug = $2 AND lower(outcome) = $3
		ORDER BY filled_at DESC, id ASC
		LIMIT 1`

	var f domain.Fill
	err := s.pool.QueryRow(ctx, query, userID, marketSlug, domain.NormalizeOutcome(outcome)).Scan(
		&f.UserID, &f.MarketSlug, &f.Outcome, &f.PricePerToken, &f.Shares, &f.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fill{}, fmt.Errorf("postgres: fill %s/%s: %w", marketSlug, outcome, domain.ErrNotFound)
		}
		return domain.Fill{}, fmt.Errorf("postgres: latest fill %s/%s: %w", marketSlug, outcome, err)
	}
	return f, nil
}

// LatestFillTime returns max(filled_at) for the user, zero when no rows exist.
func (s *FillStore) LatestFillTime(ctx context.Context, userID string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(filled_at) FROM user_fills WHERE user_id = $1`, userID,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: latest fill time %s: %w", userID, err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// InsertFills appends fills, e.g. when importing a CSV export.
func (s *FillStore) InsertFills(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	rows := make([][]any, len(fills))
	for i, f := range fills {
		rows[i] = []any{f.UserID, f.MarketSlug, f.Outcome, f.PricePerToken, f.Shares, f.Timestamp}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"user_fills"},
		[]string{"user_id", "market_slug", "outcome", "price_per_token", "shares", "filled_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %d fills: %w", len(fills), err)
	}
	return nil
}
