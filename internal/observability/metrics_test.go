package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EventsProduced.Inc()
	m.EventsProduced.Inc()
	m.RecordsConsumed.WithLabelValues("scored").Inc()
	m.SchemaMismatches.Inc()

	if got := testutil.ToFloat64(m.EventsProduced); got != 2 {
		t.Fatalf("events produced = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RecordsConsumed.WithLabelValues("scored")); got != 1 {
		t.Fatalf("records consumed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SchemaMismatches); got != 1 {
		t.Fatalf("schema mismatches = %v, want 1", got)
	}
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg)
}
