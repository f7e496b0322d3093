package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/churnflow/internal/dlq"
	"github.com/lsm/churnflow/internal/observability"
	"github.com/lsm/churnflow/internal/retry"
)

// BatchConfig holds batch-consumer configuration.
type BatchConfig struct {
	OutputTopic string
	// PollTimeout bounds each poll. A poll that returns nothing within
	// this window counts toward quiescence.
	PollTimeout time.Duration
	// QuiescentPolls is how many consecutive empty polls are read as
	// "end of currently available log".
	QuiescentPolls int
	Retry          retry.Policy
}

// Validate checks configured ranges.
func (c BatchConfig) Validate() error {
	var errs []error
	if c.OutputTopic == "" {
		errs = append(errs, errors.New("output topic is required"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	if c.QuiescentPolls < 1 {
		errs = append(errs, errors.New("quiescent polls must be >= 1"))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Batch drains all currently available input messages once, scores and
// publishes each, and terminates. Crash recovery is redelivery: any
// record published but not yet committed is scored again on the next
// run under the same event_id.
type Batch struct {
	cfg  BatchConfig
	proc *processor
}

// NewBatch creates a batch consumer run.
func NewBatch(cfg BatchConfig, source RecordSource, scorer Scorer, pub Publisher, dlqHandler *dlq.Handler,
	logger *slog.Logger, metrics *observability.Metrics, tracer trace.Tracer) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("batch config: %w", err)
	}
	if source == nil || scorer == nil || pub == nil {
		return nil, errors.New("source, scorer, and publisher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		cfg: cfg,
		proc: &processor{
			source:           source,
			scorer:           scorer,
			publisher:        pub,
			dlq:              dlqHandler,
			outputTopic:      cfg.OutputTopic,
			retryPolicy:      cfg.Retry,
			logger:           logger,
			metrics:          metrics,
			tracer:           tracer,
			haltedPartitions: make(map[int32]bool),
		},
	}, nil
}

// Run drains the input topic from the last committed offset until the
// quiescence heuristic fires, then returns the run summary. The summary
// is valid even when err is non-nil.
func (b *Batch) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	b.proc.logger.Info("batch drain starting",
		"topic", b.proc.source.Topic(),
		"output_topic", b.cfg.OutputTopic,
		"model_version", b.proc.scorer.ModelVersion(),
	)

	emptyPolls := 0
	for {
		if ctx.Err() != nil {
			break
		}

		records, err := b.proc.source.Poll(ctx, b.cfg.PollTimeout)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("poll input topic: %w", err)
		}

		if len(records) == 0 {
			emptyPolls++
			if emptyPolls >= b.cfg.QuiescentPolls {
				break
			}
			continue
		}
		emptyPolls = 0

		for _, record := range records {
			b.proc.process(ctx, record, &summary)
		}
	}

	summary.Duration = time.Since(start)
	b.proc.logger.Info("batch drain complete",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"parked", summary.Parked,
		"failed", summary.Failed,
		"duration", summary.Duration.String(),
	)

	if !summary.Clean() {
		return summary, fmt.Errorf("%d record(s) permanently failed", summary.Failed)
	}
	return summary, nil
}
