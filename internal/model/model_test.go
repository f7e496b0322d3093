package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func testArtifact() Artifact {
	return Artifact{
		Version:   "churn-v1",
		Intercept: -1.0,
		Threshold: 0.5,
		Weights: map[string]float64{
			"tenure_months": -0.04,
			"usage_score":   -2.0,
		},
		Encoders: map[string]map[string]float64{
			"plan_tier": {"free": 0.8, "basic": 0.3, "pro": -0.2, "enterprise": -0.7},
		},
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	content := `
version: churn-v1
intercept: -1.0
threshold: 0.5
weights:
  tenure_months: -0.04
encoders:
  plan_tier:
    free: 0.8
    pro: -0.2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Version() != "churn-v1" {
		t.Fatalf("unexpected version %q", m.Version())
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestNew_RejectsInvalidArtifacts(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{"missing version", func(a *Artifact) { a.Version = "" }},
		{"no features", func(a *Artifact) { a.Weights = nil; a.Encoders = nil }},
		{"threshold zero", func(a *Artifact) { a.Threshold = 0 }},
		{"threshold one", func(a *Artifact) { a.Threshold = 1 }},
		{"empty encoder", func(a *Artifact) { a.Encoders["plan_tier"] = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := testArtifact()
			tc.mutate(&a)
			if _, err := New(a); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestPredict_ProbabilityInRangeAndDeterministic(t *testing.T) {
	m, err := New(testArtifact())
	if err != nil {
		t.Fatal(err)
	}
	numeric := map[string]float64{"tenure_months": 6, "usage_score": 0.1}
	categorical := map[string]string{"plan_tier": "free"}

	p1, label1, err := m.Predict(numeric, categorical)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p1 < 0 || p1 > 1 {
		t.Fatalf("probability out of [0,1]: %v", p1)
	}
	p2, label2, err := m.Predict(numeric, categorical)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p1 != p2 || label1 != label2 {
		t.Fatalf("prediction not deterministic: (%v,%v) vs (%v,%v)", p1, label1, p2, label2)
	}
}

func TestPredict_LabelFollowsThreshold(t *testing.T) {
	m, err := New(testArtifact())
	if err != nil {
		t.Fatal(err)
	}
	// Low tenure, low usage, free tier: logit = -1 - 0.04*1 - 2*0.05 + 0.8 = -0.34
	p, label, err := m.Predict(map[string]float64{"tenure_months": 1, "usage_score": 0.05}, map[string]string{"plan_tier": "free"})
	if err != nil {
		t.Fatal(err)
	}
	if label != (p >= 0.5) {
		t.Fatalf("label %v inconsistent with probability %v", label, p)
	}
	// Long tenure, high usage, enterprise: clearly retained.
	p, label, err = m.Predict(map[string]float64{"tenure_months": 60, "usage_score": 0.9}, map[string]string{"plan_tier": "enterprise"})
	if err != nil {
		t.Fatal(err)
	}
	if label {
		t.Fatalf("expected retained customer, got churn with p=%v", p)
	}
}

func TestPredict_SchemaMismatches(t *testing.T) {
	m, err := New(testArtifact())
	if err != nil {
		t.Fatal(err)
	}
	good := map[string]float64{"tenure_months": 6, "usage_score": 0.1}

	cases := []struct {
		name        string
		numeric     map[string]float64
		categorical map[string]string
	}{
		{"missing numeric", map[string]float64{"tenure_months": 6}, map[string]string{"plan_tier": "free"}},
		{"missing categorical", good, map[string]string{}},
		{"unknown category", good, map[string]string{"plan_tier": "platinum"}},
		{"nan value", map[string]float64{"tenure_months": math.NaN(), "usage_score": 0.1}, map[string]string{"plan_tier": "free"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := m.Predict(tc.numeric, tc.categorical)
			if !IsSchemaMismatch(err) {
				t.Fatalf("expected SchemaMismatchError, got %v", err)
			}
		})
	}
}
