// Package model loads versioned churn-model artifacts and runs
// predictions against them. An artifact is loaded once per process and
// is read-only afterwards.
package model

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Artifact is the on-disk model file: a logistic model over named
// numeric features plus value encoders for categorical features.
type Artifact struct {
	Version   string                        `yaml:"version"`
	Intercept float64                       `yaml:"intercept"`
	Threshold float64                       `yaml:"threshold"`
	Weights   map[string]float64            `yaml:"weights"`
	Encoders  map[string]map[string]float64 `yaml:"encoders"`
}

// SchemaMismatchError reports an event that does not satisfy the
// model's feature schema. It is a per-message error: the record is
// skipped, never coerced.
type SchemaMismatchError struct {
	Feature string
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on feature %q: %s", e.Feature, e.Reason)
}

// IsSchemaMismatch reports whether err is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatchError
	return errors.As(err, &sm)
}

// Model is a loaded artifact ready for prediction. Immutable.
type Model struct {
	artifact Artifact
}

// Load reads and validates a model artifact. Callers treat failure as
// fatal: a process without a model refuses to start.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w", path, err)
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}
	m := &Model{artifact: a}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return m, nil
}

// New builds a model from an in-memory artifact. Used by tests and the
// offline score command.
func New(a Artifact) (*Model, error) {
	m := &Model{artifact: a}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) validate() error {
	var errs []error
	if m.artifact.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if len(m.artifact.Weights) == 0 && len(m.artifact.Encoders) == 0 {
		errs = append(errs, errors.New("artifact defines no features"))
	}
	if m.artifact.Threshold <= 0 || m.artifact.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("threshold %v must be in (0,1)", m.artifact.Threshold))
	}
	for name, values := range m.artifact.Encoders {
		if len(values) == 0 {
			errs = append(errs, fmt.Errorf("encoder %q has no values", name))
		}
	}
	return errors.Join(errs...)
}

// Version returns the artifact version string.
func (m *Model) Version() string { return m.artifact.Version }

// NumericFeatures returns the names of required numeric features.
func (m *Model) NumericFeatures() []string {
	names := make([]string, 0, len(m.artifact.Weights))
	for name := range m.artifact.Weights {
		names = append(names, name)
	}
	return names
}

// CategoricalFeatures returns the names of required categorical features.
func (m *Model) CategoricalFeatures() []string {
	names := make([]string, 0, len(m.artifact.Encoders))
	for name := range m.artifact.Encoders {
		names = append(names, name)
	}
	return names
}

// Predict computes the churn probability and label for a feature
// vector. Every weighted numeric feature and every encoded categorical
// feature must be present; a missing feature or an unknown category is
// a SchemaMismatchError.
func (m *Model) Predict(numeric map[string]float64, categorical map[string]string) (float64, bool, error) {
	logit := m.artifact.Intercept

	for name, weight := range m.artifact.Weights {
		value, ok := numeric[name]
		if !ok {
			return 0, false, &SchemaMismatchError{Feature: name, Reason: "missing numeric feature"}
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, false, &SchemaMismatchError{Feature: name, Reason: "value is not finite"}
		}
		logit += weight * value
	}

	for name, values := range m.artifact.Encoders {
		category, ok := categorical[name]
		if !ok || category == "" {
			return 0, false, &SchemaMismatchError{Feature: name, Reason: "missing categorical feature"}
		}
		encoded, ok := values[category]
		if !ok {
			return 0, false, &SchemaMismatchError{Feature: name, Reason: fmt.Sprintf("unknown category %q", category)}
		}
		logit += encoded
	}

	probability := 1 / (1 + math.Exp(-logit))
	return probability, probability >= m.artifact.Threshold, nil
}
