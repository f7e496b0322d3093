// Package pipeline implements the consume-score-publish-commit loop in
// its two operating modes: bounded batch drain and unbounded continuous
// polling. Both modes share one processing discipline: a record's
// offset is committed only after its prediction is durably published
// (publish-then-commit), which makes delivery into the scored topic
// at-least-once.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/churnflow/internal/dlq"
	"github.com/lsm/churnflow/internal/event"
	"github.com/lsm/churnflow/internal/model"
	"github.com/lsm/churnflow/internal/observability"
	"github.com/lsm/churnflow/internal/retry"
	"github.com/lsm/churnflow/internal/tracing"
)

// RecordSource is the offset-aware consumer surface the pipeline needs.
type RecordSource interface {
	Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error)
	Commit(ctx context.Context, records ...*kgo.Record) error
	Topic() string
	Close() error
}

// Publisher is the broker publish surface the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// Scorer turns one raw event payload into a prediction.
type Scorer interface {
	Score(raw []byte) (*event.ScoredPrediction, error)
	ModelVersion() string
}

// Summary reports the outcome of one consumer run.
type Summary struct {
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Parked    int           `json:"parked"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Clean reports whether the run had no permanent failures. Skipped and
// parked records do not fail a run: skips are schema mismatches that
// were deliberately passed over, and parked records are preserved on
// the dead-letter topic.
func (s Summary) Clean() bool { return s.Failed == 0 }

// processor is the per-record work shared by both consumer modes. Each
// run owns one processor and drives it from a single goroutine.
type processor struct {
	source      RecordSource
	scorer      Scorer
	publisher   Publisher
	dlq         *dlq.Handler // nil when dead-letter parking is disabled
	outputTopic string
	retryPolicy retry.Policy
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer

	// Partitions with an uncommitted failed record. Offsets are a
	// per-partition cursor: committing any later offset on such a
	// partition would silently skip past the failed record, so all
	// commits there are withheld for the rest of the run.
	haltedPartitions map[int32]bool
}

// process scores and publishes one record, then commits its offset if
// the record's outcome is settled (published, skipped, or parked).
// Records whose prediction could not be made durable are left
// uncommitted so the next run redelivers them.
func (p *processor) process(ctx context.Context, record *kgo.Record, summary *Summary) {
	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanKafkaConsume,
		trace.WithAttributes(
			tracing.KafkaTopicAttr(record.Topic),
			tracing.KafkaPartitionAttr(record.Partition),
			tracing.KafkaOffsetAttr(record.Offset),
		),
	)
	defer span.End()

	prediction, err := p.score(ctx, record.Value)
	if err != nil {
		if model.IsSchemaMismatch(err) {
			// Skip-and-report: a malformed event never blocks the stream.
			p.logger.Warn("event skipped, schema mismatch",
				"partition", record.Partition, "offset", record.Offset, "error", err)
			if p.metrics != nil {
				p.metrics.SchemaMismatches.Inc()
				p.metrics.RecordsConsumed.WithLabelValues("skipped").Inc()
			}
			summary.Skipped++
			p.commitRecord(ctx, record)
			return
		}
		tracing.SetSpanError(span, err)
		p.logger.Error("scoring failed",
			"partition", record.Partition, "offset", record.Offset, "error", err)
		if p.metrics != nil {
			p.metrics.RecordsConsumed.WithLabelValues("failed").Inc()
		}
		summary.Failed++
		return
	}

	if err := p.publish(ctx, record, prediction); err != nil {
		tracing.SetSpanError(span, err)
		p.handlePublishFailure(ctx, record, err, summary)
		return
	}

	if p.metrics != nil {
		p.metrics.PredictionsPublished.Inc()
		p.metrics.RecordsConsumed.WithLabelValues("scored").Inc()
	}
	summary.Processed++
	tracing.SetSpanOK(span)

	p.logger.Debug("event scored",
		"event_id", prediction.EventID,
		"churn_probability", prediction.ChurnProbability,
		"churn_label", prediction.ChurnLabel,
		"offset", record.Offset,
	)

	p.commitRecord(ctx, record)
}

func (p *processor) score(ctx context.Context, raw []byte) (*event.ScoredPrediction, error) {
	_, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanScore,
		trace.WithAttributes(tracing.ModelVersionAttr(p.scorer.ModelVersion())),
	)
	defer span.End()

	start := time.Now()
	prediction, err := p.scorer.Score(raw)
	if p.metrics != nil {
		p.metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		tracing.SetSpanError(span, err)
		return nil, err
	}
	return prediction, nil
}

// publish delivers the prediction with the bounded retry policy. A nil
// return means the prediction is durable on the output topic.
func (p *processor) publish(ctx context.Context, record *kgo.Record, prediction *event.ScoredPrediction) error {
	value, err := prediction.Encode()
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode prediction %s: %w", prediction.EventID, err))
	}

	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanKafkaPublish,
		trace.WithAttributes(
			tracing.KafkaTopicAttr(p.outputTopic),
			tracing.EventIDAttr(prediction.EventID),
		),
	)
	defer span.End()

	start := time.Now()
	err = retry.Do(ctx, p.retryPolicy, func() error {
		return p.publisher.Publish(ctx, p.outputTopic, []byte(prediction.CustomerID), value, nil)
	})
	if p.metrics != nil {
		p.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	tracing.SetSpanOK(span)
	return nil
}

// handlePublishFailure parks the record on the dead-letter topic when
// parking is enabled. A successfully parked record's offset is
// committed: the DLQ copy preserves at-least-once. Without parking the
// record's partition stops committing for the rest of the run so the
// next run redelivers from the failed offset.
func (p *processor) handlePublishFailure(ctx context.Context, record *kgo.Record, pubErr error, summary *Summary) {
	if p.metrics != nil {
		p.metrics.PermanentFailures.Inc()
	}

	if p.dlq == nil {
		p.logger.Error("prediction publish exhausted retries, partition commits halted for redelivery",
			"partition", record.Partition, "offset", record.Offset, "error", pubErr)
		if p.metrics != nil {
			p.metrics.RecordsConsumed.WithLabelValues("failed").Inc()
		}
		summary.Failed++
		p.haltedPartitions[record.Partition] = true
		return
	}

	info := dlq.FailureInfo{
		OriginalTopic: record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		ErrorCode:     "PUBLISH_FAILED",
		ErrorMessage:  pubErr.Error(),
		Attempts:      p.retryPolicy.MaxAttempts,
	}
	if err := p.dlq.Park(ctx, record.Key, record.Value, info); err != nil {
		p.logger.Error("dead-letter park failed, partition commits halted for redelivery",
			"partition", record.Partition, "offset", record.Offset, "error", err)
		if p.metrics != nil {
			p.metrics.RecordsConsumed.WithLabelValues("failed").Inc()
		}
		summary.Failed++
		p.haltedPartitions[record.Partition] = true
		return
	}

	p.logger.Warn("record parked on dead-letter topic",
		"partition", record.Partition, "offset", record.Offset, "error", pubErr)
	if p.metrics != nil {
		p.metrics.RecordsConsumed.WithLabelValues("parked").Inc()
	}
	summary.Parked++
	p.commitRecord(ctx, record)
}

// commitRecord commits one record's offset, unless its partition holds
// an earlier uncommitted failure, in which case the commit is withheld
// so the failed record is redelivered on the next run. Commit failures
// are logged, not fatal: the record's outcome is already durable
// downstream, and redelivery after a crash is within the at-least-once
// contract.
func (p *processor) commitRecord(ctx context.Context, record *kgo.Record) {
	if p.haltedPartitions[record.Partition] {
		p.logger.Debug("commit withheld, partition has an uncommitted failure",
			"partition", record.Partition, "offset", record.Offset)
		return
	}
	if err := p.source.Commit(ctx, record); err != nil {
		p.logger.Error("offset commit failed",
			"partition", record.Partition, "offset", record.Offset, "error", err)
		if p.metrics != nil {
			p.metrics.CommitErrors.Inc()
		}
	}
}
