package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsm/churnflow/internal/event"
)

// Source is the record read surface the collector needs. It is served
// by a consumer with a fresh group reading from the earliest offset, so
// every retained prediction is visible.
type Source interface {
	Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error)
	Close() error
}

// CollectConfig bounds one collection pass.
type CollectConfig struct {
	// MaxRecords caps how many predictions are read. Zero means no cap.
	MaxRecords     int
	PollTimeout    time.Duration
	QuiescentPolls int
}

// Validate checks configured ranges.
func (c CollectConfig) Validate() error {
	var errs []error
	if c.MaxRecords < 0 {
		errs = append(errs, errors.New("max records must be >= 0"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	if c.QuiescentPolls < 1 {
		errs = append(errs, errors.New("quiescent polls must be >= 1"))
	}
	return errors.Join(errs...)
}

// Collect drains the scored topic until MaxRecords predictions have
// been read or the topic quiesces, then aggregates them. Records that
// fail to decode are counted as malformed and skipped. An absent topic
// yields an empty report, not an error.
func Collect(ctx context.Context, cfg CollectConfig, source Source, logger *slog.Logger) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("collect config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		predictions []*event.ScoredPrediction
		malformed   int
		emptyPolls  int
	)
	for cfg.MaxRecords == 0 || len(predictions) < cfg.MaxRecords {
		if ctx.Err() != nil {
			break
		}

		records, err := source.Poll(ctx, cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, kerr.UnknownTopicOrPartition) {
				logger.Warn("scored topic absent, reporting empty")
				break
			}
			return Report{}, fmt.Errorf("poll scored topic: %w", err)
		}

		if len(records) == 0 {
			emptyPolls++
			if emptyPolls >= cfg.QuiescentPolls {
				break
			}
			continue
		}
		emptyPolls = 0

		for _, record := range records {
			p, err := event.DecodePrediction(record.Value)
			if err != nil {
				malformed++
				logger.Warn("malformed prediction skipped",
					"partition", record.Partition, "offset", record.Offset, "error", err)
				continue
			}
			predictions = append(predictions, p)
			if cfg.MaxRecords > 0 && len(predictions) >= cfg.MaxRecords {
				break
			}
		}
	}

	report := Aggregate(predictions)
	report.Malformed = malformed
	return report, nil
}
