package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestLookupMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLookupMetrics(reg)
	m.ObserveLookup("found", 0.8)
	m.ObservePage("search", "ok")
	m.ObservePage("search", "error")
	m.ObservePage("search", "error")
	m.ObserveDetail("linked")
	m.ObserveAppointmentFailure()
	m.ObserveTokenRefresh(true)

	if got := testutil.ToFloat64(m.pagesTotal.WithLabelValues("search", "error")); got != 2 {
		t.Fatalf("search error pages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lookupsTotal.WithLabelValues("found")); got != 1 {
		t.Fatalf("found lookups = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.appointmentsErr); got != 1 {
		t.Fatalf("appointment failures = %v, want 1", got)
	}
}

func TestLookupMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLookupMetrics(reg)
	m.ObserveTokenRefresh(false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestLookupMetricsNilSafe(t *testing.T) {
	var m *LookupMetrics
	m.ObserveLookup("error", 1)
	m.ObservePage("linked", "empty")
	m.ObserveDetail("error")
	m.ObserveAppointmentFailure()
	m.ObserveTokenRefresh(true)
}

func TestLookupMetricsLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLookupMetrics(reg)
	m.ObserveLookup("found", 0.3)
	m.ObserveLookup("not_found", 12)

	var out dto.Metric
	if err := m.lookupLatency.Write(&out); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	h := out.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Fatalf("sample count = %d, want 2", h.GetSampleCount())
	}
	if math.Abs(h.GetSampleSum()-12.3) > 1e-9 {
		t.Fatalf("sample sum = %v, want 12.3", h.GetSampleSum())
	}
	// 0.3s lands in the 0.5 bucket, 12s only from the 15 bucket up.
	for _, b := range h.GetBucket() {
		switch b.GetUpperBound() {
		case 0.5:
			if b.GetCumulativeCount() != 1 {
				t.Fatalf("0.5 bucket = %d, want 1", b.GetCumulativeCount())
			}
		case 15:
			if b.GetCumulativeCount() != 2 {
				t.Fatalf("15 bucket = %d, want 2", b.GetCumulativeCount())
			}
		}
	}
}
