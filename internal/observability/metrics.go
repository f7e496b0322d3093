package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all churnflow Prometheus metrics.
type Metrics struct {
	EventsProduced       prometheus.Counter
	ProduceErrors        prometheus.Counter
	RecordsConsumed      *prometheus.CounterVec
	PredictionsPublished prometheus.Counter
	SchemaMismatches     prometheus.Counter
	PermanentFailures    prometheus.Counter
	CommitErrors         prometheus.Counter
	ScoreDuration        prometheus.Histogram
	PublishDuration      prometheus.Histogram
}

// NewMetrics creates and registers all churnflow metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_events_produced_total",
			Help: "Customer events durably published to the input topic.",
		}),
		ProduceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_produce_errors_total",
			Help: "Event publishes that exhausted the retry budget.",
		}),
		RecordsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churnflow_records_consumed_total",
			Help: "Records read from the input topic, by outcome.",
		}, []string{"outcome"}),
		PredictionsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_predictions_published_total",
			Help: "Scored predictions durably published to the output topic.",
		}),
		SchemaMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_schema_mismatches_total",
			Help: "Events skipped because they did not match the model feature schema.",
		}),
		PermanentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_permanent_failures_total",
			Help: "Records whose prediction publish exhausted the retry budget.",
		}),
		CommitErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "churnflow_commit_errors_total",
			Help: "Offset commit failures.",
		}),
		ScoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churnflow_score_duration_seconds",
			Help:    "Time spent scoring one event.",
			Buckets: prometheus.DefBuckets,
		}),
		PublishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churnflow_publish_duration_seconds",
			Help:    "Time spent publishing one prediction, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
