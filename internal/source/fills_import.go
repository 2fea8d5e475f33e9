package source

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ImportFills copies the user's CSV fills into dst. Only rows newer than the
// latest fill already stored are inserted, so repeated imports of a growing
// export do not duplicate history. It returns the number of rows inserted.
func ImportFills(ctx context.Context, src *CSVFillStore, userID string, dst domain.FillImporter) (int, error) {
	fills, err := src.ReadFills(userID)
	if err != nil {
		return 0, err
	}
	since, err := dst.LatestFillTime(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("fills: import: %w", err)
	}

	fresh := fills[:0]
	for _, f := range fills {
		if f.Timestamp.After(since) {
			fresh = append(fresh, f)
		}
	}
	if err := dst.InsertFills(ctx, fresh); err != nil {
		return 0, fmt.Errorf("fills: import: %w", err)
	}
	return len(fresh), nil
}
