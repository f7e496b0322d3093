// Package analytics computes summary statistics over the scored topic:
// total count, churn rate, and the churn-probability distribution.
package analytics

import (
	"math"
	"slices"

	"github.com/lsm/churnflow/internal/event"
)

// Distribution summarizes observed churn probabilities. Quantiles use
// the nearest-rank method.
type Distribution struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P99  float64 `json:"p99"`
}

// Report is the aggregate over one read of the scored topic.
type Report struct {
	Total         int            `json:"total"`
	Churned       int            `json:"churned"`
	ChurnRate     float64        `json:"churn_rate"`
	Malformed     int            `json:"malformed,omitempty"`
	Probability   Distribution   `json:"churn_probability"`
	ModelVersions map[string]int `json:"model_versions,omitempty"`
}

// Aggregate computes a Report over the given predictions. A nil or
// empty slice yields a zero report, not an error.
func Aggregate(predictions []*event.ScoredPrediction) Report {
	report := Report{Total: len(predictions)}
	if len(predictions) == 0 {
		return report
	}

	report.ModelVersions = make(map[string]int)
	probabilities := make([]float64, 0, len(predictions))
	var sum float64
	for _, p := range predictions {
		if p.ChurnLabel {
			report.Churned++
		}
		report.ModelVersions[p.ModelVersion]++
		probabilities = append(probabilities, p.ChurnProbability)
		sum += p.ChurnProbability
	}
	report.ChurnRate = float64(report.Churned) / float64(report.Total)

	slices.Sort(probabilities)
	report.Probability = Distribution{
		Min:  probabilities[0],
		Max:  probabilities[len(probabilities)-1],
		Mean: sum / float64(len(probabilities)),
		P50:  quantile(probabilities, 0.50),
		P90:  quantile(probabilities, 0.90),
		P99:  quantile(probabilities, 0.99),
	}
	return report
}

// quantile returns the nearest-rank q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
