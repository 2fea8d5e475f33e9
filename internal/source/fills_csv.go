package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/coerce"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// CSVFillStore reads the user's enriched transaction export. The file is
// re-read on every call because an external collaborator refreshes it
// between passes. Required columns: market_slug, outcome,
// price_paid_per_token, shares, timeStamp_erc1155.
type CSVFillStore struct {
	path string
}

var _ domain.FillStore = (*CSVFillStore)(nil)

// NewCSVFillStore creates a store for path. "{user_id}" in path is replaced
// with the userID passed to LatestFill.
func NewCSVFillStore(path string) *CSVFillStore {
	return &CSVFillStore{path: path}
}

var fillColumns = []string{"market_slug", "outcome", "price_paid_per_token", "shares", "timestamp_erc1155"}

// LatestFill scans the file for the latest matching fill. Outcomes compare
// case-insensitively; equal timestamps keep the earliest row.
func (s *CSVFillStore) LatestFill(_ context.Context, userID, marketSlug, outcome string) (domain.Fill, error) {
	path := s.Path(userID)
	f, r, col, err := openFills(path)
	if err != nil {
		return domain.Fill{}, err
	}
	defer f.Close()

	want := domain.NormalizeOutcome(outcome)
	var (
		best  domain.Fill
		found bool
	)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Fill{}, fmt.Errorf("fills: read %s: %w: %v", path, domain.ErrAdapterUnavailable, err)
		}
		get := func(name string) string {
			if i := col[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if get("market_slug") != marketSlug || domain.NormalizeOutcome(get("outcome")) != want {
			continue
		}
		ts, err := ParseTimestamp(get("timestamp_erc1155"))
		if err != nil {
			return domain.Fill{}, fmt.Errorf("fills: %s line %d: %w: %v", path, line, domain.ErrAdapterUnavailable, err)
		}
		if found && !ts.After(best.Timestamp) {
			continue
		}
		price, err := coerce.String(get("price_paid_per_token"))
		if err != nil {
			return domain.Fill{}, fmt.Errorf("fills: %s line %d: %w", path, line, err)
		}
		shares, err := coerce.String(get("shares"))
		if err != nil {
			return domain.Fill{}, fmt.Errorf("fills: %s line %d: %w", path, line, err)
		}
		best = domain.Fill{
			UserID:        userID,
			MarketSlug:    marketSlug,
			Outcome:       get("outcome"),
			PricePerToken: price,
			Shares:        shares,
			Timestamp:     ts,
		}
		found = true
	}
	if !found {
		return domain.Fill{}, fmt.Errorf("fills: no fills for %s (%s): %w", marketSlug, outcome, domain.ErrNotFound)
	}
	return best, nil
}

// Path returns the file read for userID.
func (s *CSVFillStore) Path(userID string) string {
	return strings.ReplaceAll(s.path, "{user_id}", userID)
}

// ReadFills returns every row of the user's file in file order.
func (s *CSVFillStore) ReadFills(userID string) ([]domain.Fill, error) {
	path := s.Path(userID)
	f, r, col, err := openFills(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fills []domain.Fill
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return fills, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fills: read %s: %w: %v", path, domain.ErrAdapterUnavailable, err)
		}
		get := func(name string) string {
			if i := col[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		ts, err := ParseTimestamp(get("timestamp_erc1155"))
		if err != nil {
			return nil, fmt.Errorf("fills: %s line %d: %w: %v", path, line, domain.ErrAdapterUnavailable, err)
		}
		price, err := coerce.String(get("price_paid_per_token"))
		if err != nil {
			return nil, fmt.Errorf("fills: %s line %d: %w", path, line, err)
		}
		shares, err := coerce.String(get("shares"))
		if err != nil {
			return nil, fmt.Errorf("fills: %s line %d: %w", path, line, err)
		}
		fills = append(fills, domain.Fill{
			UserID:        userID,
			MarketSlug:    get("market_slug"),
			Outcome:       get("outcome"),
			PricePerToken: price,
			Shares:        shares,
			Timestamp:     ts,
		})
	}
}

// openFills opens path and indexes its header. A missing file is
// ErrNotFound; anything else wrong with it is ErrAdapterUnavailable.
func openFills(path string) (*os.File, *csv.Reader, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil, fmt.Errorf("fills: %s: %w", path, domain.ErrNotFound)
		}
		return nil, nil, nil, fmt.Errorf("fills: open %s: %w: %v", path, domain.ErrAdapterUnavailable, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	head, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("fills: read header %s: %w: %v", path, domain.ErrAdapterUnavailable, err)
	}
	col := make(map[string]int, len(head))
	for i, h := range head {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range fillColumns {
		if _, ok := col[c]; !ok {
			f.Close()
			return nil, nil, nil, fmt.Errorf("fills: %s: missing column %q: %w", path, c, domain.ErrAdapterUnavailable)
		}
	}
	return f, r, col, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339, common datetime layouts (read as UTC) and
// Unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
