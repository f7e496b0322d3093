package event

import (
	"testing"
	"time"
)

func TestCustomerEvent_EncodeRequiresIdentity(t *testing.T) {
	e := &CustomerEvent{CustomerID: "c-1"}
	if _, err := e.Encode(); err == nil {
		t.Fatal("expected error for missing event_id")
	}
	e = &CustomerEvent{EventID: "e-1"}
	if _, err := e.Encode(); err == nil {
		t.Fatal("expected error for missing customer_id")
	}
}

func TestDecodePrediction_RoundTrip(t *testing.T) {
	p := &ScoredPrediction{
		EventID:          "e-1",
		CustomerID:       "c-1",
		ChurnProbability: 0.42,
		ChurnLabel:       false,
		ModelVersion:     "v3",
		ScoredAt:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePrediction(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != p.EventID || got.ChurnProbability != p.ChurnProbability || got.ModelVersion != p.ModelVersion {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodePrediction_RejectsOutOfRangeProbability(t *testing.T) {
	if _, err := DecodePrediction([]byte(`{"event_id":"e","churn_probability":1.5}`)); err == nil {
		t.Fatal("expected error for probability > 1")
	}
	if _, err := DecodePrediction([]byte(`{"churn_probability":0.5}`)); err == nil {
		t.Fatal("expected error for missing event_id")
	}
	if _, err := DecodePrediction([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestGenerator_UniqueEventIDs(t *testing.T) {
	g := NewGenerator(7)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		e := g.Next()
		if e.EventID == "" || seen[e.EventID] {
			t.Fatalf("event %d: duplicate or empty event_id %q", i, e.EventID)
		}
		seen[e.EventID] = true
		if e.UsageScore < 0 || e.UsageScore > 1 {
			t.Fatalf("usage_score out of range: %v", e.UsageScore)
		}
		if e.MonthlySpend < 5 || e.MonthlySpend > 500 {
			t.Fatalf("monthly_spend out of range: %v", e.MonthlySpend)
		}
		if _, err := e.Encode(); err != nil {
			t.Fatalf("generated event does not encode: %v", err)
		}
	}
}
