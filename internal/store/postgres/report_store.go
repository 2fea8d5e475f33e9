package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var _ domain.ReportStore = (*ReportStore)(nil)

// ReportStore appends one arb_runs row per pass, with its (strategy, source)
// percentages flattened into arb_results for querying.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a ReportStore.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// SaveReport inserts the run and its results in one transaction.
func (s *ReportStore) SaveReport(ctx context.Context, r domain.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: encode report %s: %w", r.RunID, err)
	}
	total, incomplete := r.Counts()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save report: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertRun = `
		INSERT INTO arb_runs (run_id, started_at, finished_at, pairs, incomplete, report)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insertRun, r.RunID, r.StartedAt, r.FinishedAt, total, incomplete, payload); err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", r.RunID, err)
	}

	const insertResult = `
		INSERT INTO arb_results (run_id, strategy, source, method, percentage)
		VALUES ($1, $2, $3, $4, $5)`
	batch := &pgx.Batch{}
	for name, bySource := range r.Results {
		for src, res := range bySource {
			var pct *float64
			if v, ok := res.Percentage.Value(); ok {
				pct = &v
			}
			batch.Queue(insertResult, r.RunID, name, string(src), string(res.Method), pct)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert results for %s: %w", r.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit report %s: %w", r.RunID, err)
	}
	return nil
}

// LatestReport returns the most recently finished run.
func (s *ReportStore) LatestReport(ctx context.Context) (domain.Report, error) {
	const query = `SELECT report FROM arb_runs ORDER BY finished_at DESC LIMIT 1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Report{}, domain.ErrNotFound
		}
		return domain.Report{}, fmt.Errorf("postgres: latest report: %w", err)
	}
	var r domain.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.Report{}, fmt.Errorf("postgres: decode latest report: %w", err)
	}
	return r, nil
}

// ListRuns returns run summaries, newest first. limit <= 0 returns all.
func (s *ReportStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	query := `SELECT run_id, started_at, finished_at, pairs, incomplete FROM arb_runs ORDER BY finished_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var rs domain.RunSummary
		if err := rows.Scan(&rs.RunID, &rs.StartedAt, &rs.FinishedAt, &rs.Pairs, &rs.Incomplete); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate runs: %w", err)
	}
	return out, nil
}
