package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/fsutil"
)

const (
	reportFile  = "report.json"
	summaryFile = "summary.csv"
	detailsDir  = "details"
)

var (
	summaryHeader = []string{"Trade Name", "Price Type", "Arbitrage %"}
	detailsHeader = []string{"Slug", "Side", "Price", "Size"}
)

// Writer renders reports into a local directory and optionally mirrors the
// files to object storage under prefix/run_id/.
type Writer struct {
	dir    string
	blobs  domain.BlobWriter
	prefix string
	logger *slog.Logger
}

// NewWriter creates a Writer. blobs may be nil to disable uploads.
func NewWriter(dir string, blobs domain.BlobWriter, prefix string, logger *slog.Logger) *Writer {
	return &Writer{
		dir:    dir,
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "report_writer")),
	}
}

// Write renders every file for r. Local writes are atomic. An upload failure
// is returned after all local files are in place.
func (w *Writer) Write(ctx context.Context, r domain.Report) error {
	files, err := Render(r)
	if err != nil {
		return err
	}

	for name, data := range files {
		dst := filepath.Join(w.dir, filepath.FromSlash(name))
		if err := fsutil.WriteFileAtomic(dst, func(out io.Writer) error {
			_, err := out.Write(data)
			return err
		}); err != nil {
			return fmt.Errorf("report: write %s: %w", dst, err)
		}
	}
	if err := w.pruneDetails(files); err != nil {
		return err
	}
	w.logger.Info("report written",
		slog.String("run_id", r.RunID),
		slog.String("dir", w.dir),
		slog.Int("files", len(files)),
	)

	if w.blobs == nil {
		return nil
	}
	for name, data := range files {
		key := path.Join(w.prefix, r.RunID, name)
		if err := w.blobs.Put(ctx, key, bytes.NewReader(data), contentType(name)); err != nil {
			return fmt.Errorf("report: upload %s: %w", key, err)
		}
	}
	w.logger.Info("report uploaded", slog.String("run_id", r.RunID), slog.String("prefix", path.Join(w.prefix, r.RunID)))
	return nil
}

// pruneDetails removes details files left by earlier passes whose pairs no
// longer have resolved legs.
func (w *Writer) pruneDetails(files map[string][]byte) error {
	dir := filepath.Join(w.dir, detailsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("report: list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := files[path.Join(detailsDir, e.Name())]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("report: remove stale %s: %w", e.Name(), err)
		}
	}
	return nil
}

// ReadLatest loads the last report.json written into dir.
func ReadLatest(dir string) (domain.Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Report{}, fmt.Errorf("report: %w", domain.ErrNotFound)
		}
		return domain.Report{}, fmt.Errorf("report: read: %w", err)
	}
	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Report{}, fmt.Errorf("report: decode: %w", err)
	}
	return r, nil
}

// Render produces every report file keyed by slash-separated relative path.
func Render(r domain.Report) (map[string][]byte, error) {
	files := make(map[string][]byte)

	js, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode json: %w", err)
	}
	files[reportFile] = append(js, '\n')

	summary, err := renderCSV(summaryHeader, summaryRecords(r))
	if err != nil {
		return nil, fmt.Errorf("report: summary: %w", err)
	}
	files[summaryFile] = summary

	for name, bySource := range r.Results {
		for src, res := range bySource {
			records := detailRecords(res)
			if len(records) == 0 {
				continue
			}
			data, err := renderCSV(detailsHeader, records)
			if err != nil {
				return nil, fmt.Errorf("report: details %s/%s: %w", name, src, err)
			}
			files[path.Join(detailsDir, DetailsFileName(name, src))] = data
		}
	}
	return files, nil
}

// DetailsFileName is the line-item file name for a (strategy, source) pair.
func DetailsFileName(strategy string, src domain.PriceSource) string {
	return safeName(strategy) + "_" + string(src) + ".csv"
}

func summaryRecords(r domain.Report) [][]string {
	rows := Summary(r)
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = []string{row.Strategy, string(row.Source), row.Percentage.String()}
	}
	return out
}

// detailRecords lists the resolved legs of a pair.
func detailRecords(res domain.ArbitrageResult) [][]string {
	var out [][]string
	for _, leg := range res.Legs {
		if leg.Status != domain.LegResolved || leg.Price == nil {
			continue
		}
		size := ""
		if leg.Size != nil {
			size = strconv.FormatFloat(*leg.Size, 'f', -1, 64)
		}
		out = append(out, []string{
			domain.TradeLeg{MarketSlug: leg.MarketSlug, Outcome: leg.Outcome}.String(),
			string(leg.Side),
			strconv.FormatFloat(*leg.Price, 'f', -1, 64),
			size,
		})
	}
	return out
}

func renderCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var unsafeChars = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")

func safeName(s string) string {
	return unsafeChars.Replace(strings.TrimSpace(s))
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
