package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordLeg("ask", "resolved")
	m.RecordCache("memory", "hit")
	m.RecordUpstreamError("book")
	m.RecordBatch(time.Second, 3, 1)
	m.RecordBatchFailure()
}

func TestRecordBatch(t *testing.T) {
	m := New()
	m.RecordBatch(250*time.Millisecond, 10, 4)
	m.RecordLeg("live", "unavailable")
	m.RecordLeg("live", "unavailable")

	if got := testutil.ToFloat64(m.BatchPairs.WithLabelValues("incomplete")); got != 4 {
		t.Fatalf("incomplete gauge = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.BatchPairs.WithLabelValues("complete")); got != 6 {
		t.Fatalf("complete gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(m.LegResolutions.WithLabelValues("live", "unavailable")); got != 2 {
		t.Fatalf("leg counter = %v, want 2", got)
	}
}
