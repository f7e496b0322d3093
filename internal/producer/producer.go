// Package producer emits customer events into the input topic, either
// continuously at a fixed rate for a bounded duration (streaming mode)
// or as a fixed count as fast as the broker accepts them (batch mode).
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/lsm/churnflow/internal/event"
	"github.com/lsm/churnflow/internal/observability"
	"github.com/lsm/churnflow/internal/retry"
)

// Publisher is the broker publish surface the producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// Mode selects how events are emitted.
type Mode string

const (
	// ModeStreaming emits one event every 1/rate seconds for a bounded
	// wall-clock duration.
	ModeStreaming Mode = "streaming"
	// ModeBatch emits exactly NumEvents events, then returns.
	ModeBatch Mode = "batch"
)

// Config holds producer configuration.
type Config struct {
	Topic     string
	Mode      Mode
	Rate      float64       // events per second, streaming mode
	Duration  time.Duration // wall-clock bound, streaming mode
	NumEvents int           // event count, batch mode
	Retry     retry.Policy
}

// Validate checks mode-specific ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	switch c.Mode {
	case ModeStreaming:
		if c.Rate <= 0 {
			errs = append(errs, errors.New("rate must be positive in streaming mode"))
		}
		if c.Duration <= 0 {
			errs = append(errs, errors.New("duration must be positive in streaming mode"))
		}
	case ModeBatch:
		if c.NumEvents < 1 {
			errs = append(errs, errors.New("num-events must be >= 1 in batch mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("mode %q is not valid (must be streaming or batch)", c.Mode))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NextEvent supplies the events to produce. Returning io.EOF ends the
// run early (a replayed file ran out of lines).
type NextEvent func() (*event.CustomerEvent, error)

// Producer publishes events one at a time with a bounded per-event
// retry budget. Exhausting the budget aborts the run; the count of
// events produced before the failure is always reported.
type Producer struct {
	cfg       Config
	publisher Publisher
	next      NextEvent
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a producer.
func New(cfg Config, pub Publisher, next NextEvent, logger *slog.Logger, metrics *observability.Metrics) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("producer config: %w", err)
	}
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if next == nil {
		return nil, errors.New("event source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{cfg: cfg, publisher: pub, next: next, logger: logger, metrics: metrics}, nil
}

// Run produces events until the mode's bound is reached or ctx is
// cancelled. It returns the number of events durably published; the
// error is non-nil only when a publish exhausted its retry budget or
// the event source failed.
func (p *Producer) Run(ctx context.Context) (int, error) {
	switch p.cfg.Mode {
	case ModeStreaming:
		return p.runStreaming(ctx)
	default:
		return p.runBatch(ctx)
	}
}

func (p *Producer) runStreaming(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(p.cfg.Rate), 1)
	produced := 0

	p.logger.Info("streaming events", "topic", p.cfg.Topic,
		"rate", p.cfg.Rate, "duration", p.cfg.Duration.String())

	for {
		if err := limiter.Wait(ctx); err != nil {
			// Deadline or external cancellation ends the run normally.
			p.logger.Info("streaming run complete", "produced", produced)
			return produced, nil
		}
		if err := p.produceOne(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("event source exhausted", "produced", produced)
				return produced, nil
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// The run bound expired while a publish retry was
				// pending. That is the run ending, not a failure.
				p.logger.Info("streaming run complete", "produced", produced)
				return produced, nil
			}
			return produced, err
		}
		produced++
	}
}

func (p *Producer) runBatch(ctx context.Context) (int, error) {
	p.logger.Info("producing event batch", "topic", p.cfg.Topic, "num_events", p.cfg.NumEvents)

	produced := 0
	for produced < p.cfg.NumEvents {
		if ctx.Err() != nil {
			p.logger.Warn("batch production interrupted", "produced", produced, "requested", p.cfg.NumEvents)
			return produced, nil
		}
		if err := p.produceOne(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("event source exhausted", "produced", produced)
				return produced, nil
			}
			return produced, err
		}
		produced++
	}

	p.logger.Info("batch production complete", "produced", produced)
	return produced, nil
}

// produceOne publishes a single event with the bounded retry policy.
func (p *Producer) produceOne(ctx context.Context) error {
	evt, err := p.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("next event: %w", err)
	}

	value, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.EventID, err)
	}

	// Keyed by customer so one customer's events stay on one partition.
	err = retry.Do(ctx, p.cfg.Retry, func() error {
		return p.publisher.Publish(ctx, p.cfg.Topic, []byte(evt.CustomerID), value, nil)
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.ProduceErrors.Inc()
		}
		return fmt.Errorf("publish event %s after %d attempts: %w", evt.EventID, p.cfg.Retry.MaxAttempts, err)
	}

	if p.metrics != nil {
		p.metrics.EventsProduced.Inc()
	}
	p.logger.Debug("event produced", "event_id", evt.EventID, "customer_id", evt.CustomerID)
	return nil
}
