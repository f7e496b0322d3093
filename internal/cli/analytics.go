package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"time"

	"github.com/lsm/churnflow/internal/analytics"
	"github.com/lsm/churnflow/internal/kafka"
)

// newAnalyticsSource creates the scored-topic reader. Each run uses a
// fresh consumer group so it always reads from the earliest offset.
// Tests replace this.
var newAnalyticsSource = func(cluster *kafka.ClusterConfig, topic string, logger *slog.Logger) (analytics.Source, error) {
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Cluster:     cluster,
		Topic:       topic,
		Group:       fmt.Sprintf("churnflow-analytics-%d", time.Now().Unix()),
		StartOffset: "earliest",
	}, logger)
}

// RunAnalytics aggregates statistics over the scored topic.
func RunAnalytics(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(`Usage: churnflow analytics [options]

Reads the scored topic from the beginning and prints total count, churn
rate, and the churn-probability distribution as JSON. An absent topic
yields an empty report.

Options:
  --max-records <n>     Cap on predictions read (default: 100000)
  --poll-timeout <d>    Per-poll wait bound (default: 5s)
  --config <path>       Config file path
  --brokers <addrs>     Broker addresses, comma separated
  --log-level <level>   debug, info, warn, or error

Examples:
  churnflow analytics
  churnflow analytics --max-records 1000`)
		return nil
	}

	cfg, logger, err := loadRuntime("analytics", args)
	if err != nil {
		return err
	}

	maxRecords, err := parseIntFlag(args, "--max-records", 100000)
	if err != nil {
		return err
	}
	pollTimeout, err := parseDurationFlag(args, "--poll-timeout", 5*time.Second)
	if err != nil {
		return err
	}

	source, err := newAnalyticsSource(&cfg.Cluster, cfg.Topics.Scored.Name, logger)
	if err != nil {
		return fmt.Errorf("create scored-topic reader: %w", err)
	}
	defer func() { _ = source.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	report, err := analytics.Collect(ctx, analytics.CollectConfig{
		MaxRecords:     maxRecords,
		PollTimeout:    pollTimeout,
		QuiescentPolls: 2,
	}, source, logger)
	if err != nil {
		return err
	}

	printJSON(report)
	return nil
}
