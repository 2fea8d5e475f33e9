package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "arb"})
	want := "postgres://u:p@db:5432/arb?sslmode=disable"
	if got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %q", got)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
}

// Integration tests run against a disposable database named by
// POLYARB_TEST_PG_DSN.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("POLYARB_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POLYARB_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return c
}

func TestReportStoreRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	store := NewReportStore(c.Pool())

	now := time.Now().UTC().Truncate(time.Millisecond)
	runID := "test-" + now.Format("20060102150405.000")
	r := domain.Report{
		RunID:      runID,
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Sources:    []domain.PriceSource{domain.SourceLive},
		Results: domain.Results{
			"s": {domain.SourceLive: {Strategy: "s", Source: domain.SourceLive, Method: domain.MethodAllNo, Percentage: domain.Incomplete}},
		},
	}
	if err := store.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	got, err := store.LatestReport(ctx)
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if got.RunID != runID || !got.Results["s"][domain.SourceLive].Percentage.IsIncomplete() {
		t.Fatalf("latest = %+v", got)
	}
	runs, err := store.ListRuns(ctx, 1)
	if err != nil || len(runs) != 1 || runs[0].Incomplete != 1 {
		t.Fatalf("ListRuns = %+v, %v", runs, err)
	}
}

func TestFillStoreLatest(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	store := NewFillStore(c.Pool())

	user := "u-" + time.Now().Format("150405.000000")
	base := time.Now().UTC().Truncate(time.Second)
	if err := store.InsertFills(ctx, []domain.Fill{
		{UserID: user, MarketSlug: "m", Outcome: "Yes", PricePerToken: 0.3, Shares: 1, Timestamp: base},
		{UserID: user, MarketSlug: "m", Outcome: "yes", PricePerToken: 0.45, Shares: 2, Timestamp: base.Add(time.Minute)},
	}); err != nil {
		t.Fatalf("InsertFills: %v", err)
	}
	f, err := store.LatestFill(ctx, user, "m", "YES")
	if err != nil {
		t.Fatalf("LatestFill: %v", err)
	}
	if f.PricePerToken != 0.45 {
		t.Fatalf("price = %v", f.PricePerToken)
	}
	if _, err := store.LatestFill(ctx, user, "m", "No"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
