// Package scoring turns raw customer events into scored predictions
// using a loaded model. Scoring is a pure function of (event, model):
// the same event and model version always yield the same probability.
package scoring

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lsm/churnflow/internal/event"
	"github.com/lsm/churnflow/internal/model"
)

// Engine scores events against one model. Safe for concurrent use; the
// model is read-only for the engine's lifetime.
type Engine struct {
	model *model.Model
	now   func() time.Time
}

// NewEngine creates an engine over a loaded model.
func NewEngine(m *model.Model) *Engine {
	return &Engine{model: m, now: time.Now}
}

// ModelVersion returns the version of the loaded model.
func (e *Engine) ModelVersion() string { return e.model.Version() }

// Score validates a raw event payload against the model's feature
// schema and computes its prediction. Schema violations are reported as
// model.SchemaMismatchError; the caller decides whether to skip or park
// the record.
func (e *Engine) Score(raw []byte) (*event.ScoredPrediction, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &model.SchemaMismatchError{Feature: "event", Reason: fmt.Sprintf("payload is not a JSON object: %v", err)}
	}

	eventID, err := requireString(fields, "event_id")
	if err != nil {
		return nil, err
	}
	customerID, err := requireString(fields, "customer_id")
	if err != nil {
		return nil, err
	}

	numeric := make(map[string]float64)
	for _, name := range e.model.NumericFeatures() {
		value, ok := fields[name]
		if !ok {
			continue // Predict reports the missing feature
		}
		f, ok := value.(float64)
		if !ok {
			return nil, &model.SchemaMismatchError{Feature: name, Reason: fmt.Sprintf("expected number, got %T", value)}
		}
		numeric[name] = f
	}

	categorical := make(map[string]string)
	for _, name := range e.model.CategoricalFeatures() {
		value, ok := fields[name]
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, &model.SchemaMismatchError{Feature: name, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
		categorical[name] = s
	}

	probability, label, err := e.model.Predict(numeric, categorical)
	if err != nil {
		return nil, err
	}

	return &event.ScoredPrediction{
		EventID:          eventID,
		CustomerID:       customerID,
		ChurnProbability: probability,
		ChurnLabel:       label,
		ModelVersion:     e.model.Version(),
		ScoredAt:         e.now().UTC(),
	}, nil
}

// ScoreEvent scores a typed event. Used by the offline score command.
func (e *Engine) ScoreEvent(evt *event.CustomerEvent) (*event.ScoredPrediction, error) {
	raw, err := evt.Encode()
	if err != nil {
		return nil, &model.SchemaMismatchError{Feature: "event", Reason: err.Error()}
	}
	return e.Score(raw)
}

func requireString(fields map[string]any, name string) (string, error) {
	value, ok := fields[name]
	if !ok {
		return "", &model.SchemaMismatchError{Feature: name, Reason: "missing required field"}
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", &model.SchemaMismatchError{Feature: name, Reason: "must be a non-empty string"}
	}
	return s, nil
}
