package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func sampleReport() domain.Report {
	return domain.Report{
		RunID:      "run-1",
		StartedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		Sources:    []domain.PriceSource{domain.SourceLive, domain.SourceAsk},
		Results: domain.Results{
			"alpha": {
				domain.SourceLive: {Strategy: "alpha", Source: domain.SourceLive, Method: domain.MethodAllNo, Percentage: domain.Pct(3.5),
					Legs: []domain.LegDetail{
						{Side: domain.SidePositions, MarketSlug: "a", Outcome: "No", Source: domain.SourceLive, Status: domain.LegResolved, Price: ptr(0.4)},
						{Side: domain.SidePositions, MarketSlug: "b", Outcome: "No", Source: domain.SourceLive, Status: domain.LegResolved, Price: ptr(0.5), Size: ptr(12)},
					}},
				domain.SourceAsk: {Strategy: "alpha", Source: domain.SourceAsk, Method: domain.MethodAllNo, Percentage: domain.Incomplete,
					Legs: []domain.LegDetail{
						{Side: domain.SidePositions, MarketSlug: "a", Outcome: "No", Source: domain.SourceAsk, Status: domain.LegUnavailable, Reason: "lookup_miss"},
						{Side: domain.SidePositions, MarketSlug: "b", Outcome: "No", Source: domain.SourceAsk, Status: domain.LegSkipped},
					}},
			},
			"beta/gamma": {
				domain.SourceLive: {Strategy: "beta/gamma", Source: domain.SourceLive, Percentage: domain.Pct(-1.25)},
				domain.SourceAsk:  {Strategy: "beta/gamma", Source: domain.SourceAsk, Percentage: domain.Pct(7)},
			},
		},
	}
}

func TestSummaryOrdering(t *testing.T) {
	rows := Summary(sampleReport())
	want := []string{"beta/gamma ask", "alpha live", "beta/gamma live", "alpha ask"}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d", len(rows))
	}
	for i, row := range rows {
		if got := row.Strategy + " " + string(row.Source); got != want[i] {
			t.Errorf("row %d = %q, want %q", i, got, want[i])
		}
	}
	if !rows[3].Percentage.IsIncomplete() {
		t.Fatal("incomplete row should sort last")
	}
}

func TestAbove(t *testing.T) {
	rows := Above(sampleReport(), domain.SourceLive, 0)
	if len(rows) != 1 || rows[0].Strategy != "alpha" {
		t.Fatalf("Above = %+v", rows)
	}
}

type memBlobs struct {
	mu    sync.Mutex
	files map[string]string
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string]string)
	}
	m.files[path] = string(b)
	return nil
}

func TestWriteFilesAndUpload(t *testing.T) {
	dir := t.TempDir()
	blobs := &memBlobs{}
	w := NewWriter(dir, blobs, "/reports/", slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := sampleReport()

	if err := w.Write(context.Background(), r); err != nil {
		t.Fatalf("Write: %v", err)
	}

	summary, err := os.ReadFile(filepath.Join(dir, "summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(bytes.NewReader(summary)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(records[0], ",") != "Trade Name,Price Type,Arbitrage %" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][2] != "7.00" || records[4][2] != "incomplete" {
		t.Fatalf("summary = %v", records)
	}

	details, err := os.ReadFile(filepath.Join(dir, "details", "alpha_live.csv"))
	if err != nil {
		t.Fatal(err)
	}
	wantDetails := "Slug,Side,Price,Size\na (No),positions,0.4,\nb (No),positions,0.5,12\n"
	if string(details) != wantDetails {
		t.Fatalf("details = %q", details)
	}
	if _, err := os.Stat(filepath.Join(dir, "details", "alpha_ask.csv")); !os.IsNotExist(err) {
		t.Fatalf("pair without resolved legs should have no details file, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "details", "beta_gamma_live.csv")); !os.IsNotExist(err) {
		t.Fatalf("pair without legs should have no details file, err = %v", err)
	}

	got, err := ReadLatest(dir)
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if !got.Results["alpha"][domain.SourceAsk].Percentage.IsIncomplete() {
		t.Fatal("incomplete marker lost in round trip")
	}
	if v, _ := got.Results["alpha"][domain.SourceLive].Percentage.Value(); v != 3.5 {
		t.Fatalf("percentage = %v", v)
	}

	if _, ok := blobs.files["reports/run-1/report.json"]; !ok {
		t.Fatalf("uploaded = %v", keys(blobs.files))
	}
	if _, ok := blobs.files["reports/run-1/details/alpha_live.csv"]; !ok {
		t.Fatalf("uploaded = %v", keys(blobs.files))
	}
}

func TestWriteRemovesStaleDetails(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := w.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	stale := filepath.Join(dir, "details", "alpha_live.csv")
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("details after first pass: %v", err)
	}

	// Next pass: the live legs no longer resolve.
	r := sampleReport()
	r.RunID = "run-2"
	live := r.Results["alpha"][domain.SourceLive]
	live.Percentage = domain.Incomplete
	live.Legs = []domain.LegDetail{{Side: domain.SidePositions, MarketSlug: "a", Outcome: "No", Source: domain.SourceLive, Status: domain.LegUnavailable}}
	r.Results["alpha"][domain.SourceLive] = live

	if err := w.Write(context.Background(), r); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale details file survived, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.csv")); err != nil {
		t.Fatalf("summary: %v", err)
	}
}

func TestReadLatestMissing(t *testing.T) {
	if _, err := ReadLatest(t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
