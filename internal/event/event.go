// Package event defines the customer-activity event and scored
// prediction records that travel through the broker topics.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CustomerEvent is one customer-activity observation. Immutable once
// produced; identified by EventID.
type CustomerEvent struct {
	EventID        string    `json:"event_id"`
	CustomerID     string    `json:"customer_id"`
	PlanTier       string    `json:"plan_tier"`
	TenureMonths   int       `json:"tenure_months"`
	MonthlySpend   float64   `json:"monthly_spend"`
	SupportTickets int       `json:"support_tickets"`
	UsageScore     float64   `json:"usage_score"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// ScoredPrediction is the scoring result for one event. Created at most
// once per successful score; duplicates across runs share an EventID.
type ScoredPrediction struct {
	EventID          string    `json:"event_id"`
	CustomerID       string    `json:"customer_id"`
	ChurnProbability float64   `json:"churn_probability"`
	ChurnLabel       bool      `json:"churn_label"`
	ModelVersion     string    `json:"model_version"`
	ScoredAt         time.Time `json:"scored_at"`
}

// Encode marshals the event for the wire.
func (e *CustomerEvent) Encode() ([]byte, error) {
	if e.EventID == "" {
		return nil, errors.New("event_id is required")
	}
	if e.CustomerID == "" {
		return nil, errors.New("customer_id is required")
	}
	return json.Marshal(e)
}

// Encode marshals the prediction for the wire.
func (p *ScoredPrediction) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePrediction unmarshals a scored prediction record and checks the
// probability bound.
func DecodePrediction(b []byte) (*ScoredPrediction, error) {
	var p ScoredPrediction
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	if p.EventID == "" {
		return nil, errors.New("prediction missing event_id")
	}
	if p.ChurnProbability < 0 || p.ChurnProbability > 1 {
		return nil, fmt.Errorf("churn_probability %v out of [0,1]", p.ChurnProbability)
	}
	return &p, nil
}
