package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// consumerClient abstracts the kgo client methods used by Consumer for
// testing.
type consumerClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	Close()
}

// ConsumerConfig holds consumer group configuration for one topic.
type ConsumerConfig struct {
	Cluster     *ClusterConfig
	Topic       string
	Group       string
	StartOffset string // "earliest" or "latest" (default: "earliest")
}

// Consumer reads records from one topic within a consumer group.
// Auto-commit is disabled: the caller commits records individually and
// only after their downstream publish is durable, which is what makes
// delivery at-least-once rather than at-most-once.
type Consumer struct {
	client consumerClient
	topic  string
	logger *slog.Logger
}

// NewConsumer creates a consumer. A recreated (flushed) topic resets
// the group to offset 0 because the reset offset is "earliest".
func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) (*Consumer, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	offset := kgo.NewOffset().AtStart()
	if cfg.StartOffset == "latest" {
		offset = kgo.NewOffset().AtEnd()
	}

	opts, err := ClientOptions(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(offset),
		kgo.DisableAutoCommit(),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}

	return &Consumer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Topic returns the consumed topic name.
func (c *Consumer) Topic() string { return c.topic }

// Poll fetches whatever records are available within timeout. An empty
// slice with a nil error means the timeout elapsed with nothing new,
// which batch callers use as the end-of-log heuristic.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)

	var fetchErr error
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		c.logger.Error("fetch error", "topic", fe.Topic, "partition", fe.Partition, "error", fe.Err)
		fetchErr = errors.Join(fetchErr, fe.Err)
	}

	var records []*kgo.Record
	fetches.EachRecord(func(record *kgo.Record) {
		records = append(records, record)
	})

	if fetchErr != nil && len(records) == 0 {
		return nil, fmt.Errorf("poll %s: %w", c.topic, fetchErr)
	}
	return records, nil
}

// Commit synchronously commits the given records' offsets to the
// broker. With auto-commit disabled this is the only commit path; the
// mark-then-flush API is not usable here because marks only take
// effect under kgo.AutoCommitMarks, which conflicts with
// kgo.DisableAutoCommit.
func (c *Consumer) Commit(ctx context.Context, records ...*kgo.Record) error {
	if err := c.client.CommitRecords(ctx, records...); err != nil {
		return fmt.Errorf("commit %s: %w", c.topic, err)
	}
	return nil
}

// Close shuts down the consumer and leaves the group.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
