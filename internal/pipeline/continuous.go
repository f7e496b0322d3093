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

// ContinuousConfig holds continuous-consumer configuration.
type ContinuousConfig struct {
	OutputTopic string
	// PollInterval is the fixed sleep between poll cycles.
	PollInterval time.Duration
	// PollTimeout bounds each poll so cancellation is observed promptly.
	PollTimeout time.Duration
	Retry       retry.Policy
}

// Validate checks configured ranges.
func (c ContinuousConfig) Validate() error {
	var errs []error
	if c.OutputTopic == "" {
		errs = append(errs, errors.New("output topic is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Continuous polls the input topic forever at a fixed interval. It has
// no terminal state of its own: it returns only when ctx is cancelled,
// and then only after every record already read has been scored,
// published, and committed (or definitively failed). Cancellation is
// checked between cycles, never mid-record, which preserves the
// publish-then-commit ordering under shutdown.
type Continuous struct {
	cfg  ContinuousConfig
	proc *processor
}

// NewContinuous creates a continuous consumer.
func NewContinuous(cfg ContinuousConfig, source RecordSource, scorer Scorer, pub Publisher, dlqHandler *dlq.Handler,
	logger *slog.Logger, metrics *observability.Metrics, tracer trace.Tracer) (*Continuous, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("continuous config: %w", err)
	}
	if source == nil || scorer == nil || pub == nil {
		return nil, errors.New("source, scorer, and publisher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Continuous{
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

// Run loops poll-process-commit until ctx is cancelled, then drains the
// final fetch and returns the cumulative summary.
func (c *Continuous) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	c.proc.logger.Info("continuous consumer starting",
		"topic", c.proc.source.Topic(),
		"output_topic", c.cfg.OutputTopic,
		"poll_interval", c.cfg.PollInterval.String(),
		"model_version", c.proc.scorer.ModelVersion(),
	)

	pollErrs := 0
	for {
		records, err := c.proc.source.Poll(ctx, c.cfg.PollTimeout)
		if err != nil && ctx.Err() == nil {
			// Transient broker trouble: back off and keep polling, up to
			// the configured budget.
			pollErrs++
			c.proc.logger.Error("poll failed", "consecutive_errors", pollErrs, "error", err)
			if pollErrs >= c.cfg.Retry.MaxAttempts {
				summary.Duration = time.Since(start)
				return summary, fmt.Errorf("poll input topic: %w", err)
			}
			if !sleep(ctx, backoffDelay(c.cfg.Retry, pollErrs-1)) {
				break
			}
			continue
		}
		pollErrs = 0

		// Records already read are always finished, even during
		// shutdown: processing runs on a context that survives the
		// cancellation that ended the poll.
		drainCtx := context.WithoutCancel(ctx)
		for _, record := range records {
			c.proc.process(drainCtx, record, &summary)
		}

		if ctx.Err() != nil {
			c.proc.logger.Info("cancellation observed, drain complete")
			break
		}

		if !sleep(ctx, c.cfg.PollInterval) {
			break
		}
	}

	summary.Duration = time.Since(start)
	c.proc.logger.Info("continuous consumer stopped",
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

// sleep waits for d or cancellation, reporting false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func backoffDelay(p retry.Policy, attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
