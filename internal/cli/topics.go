package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lsm/churnflow/internal/kafka"
)

// topicAdmin abstracts the admin client for testing.
type topicAdmin interface {
	Ensure(ctx context.Context, spec kafka.TopicSpec) error
	Delete(ctx context.Context, name string) error
	Flush(ctx context.Context, spec kafka.TopicSpec) error
	Cleanup(ctx context.Context, keep map[string]bool) ([]string, error)
	Close()
}

// newTopicAdmin creates the admin client. Tests replace this.
var newTopicAdmin = func(cluster *kafka.ClusterConfig, logger *slog.Logger) (topicAdmin, error) {
	return kafka.NewAdmin(cluster, logger)
}

// RunTopics manages the lifecycle of the managed topics.
func RunTopics(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Println(`Usage: churnflow topics <ensure|delete|flush|cleanup> [options]

Manages the input and scored topics.

Subcommands:
  ensure    Create both topics if absent; a topic that exists with a
            different partition count or replication factor is an error
  delete    Delete both topics; absent topics are not an error
  flush     Delete and recreate both topics, destroying retained
            messages; consumer groups restart from offset 0
  cleanup   Delete every non-internal topic except the managed topics
            and the input topic's dead-letter companion

Options:
  --config <path>       Config file path
  --brokers <addrs>     Broker addresses, comma separated
  --log-level <level>   debug, info, warn, or error

Examples:
  churnflow topics ensure
  churnflow topics flush --brokers broker-1:9092`)
		return nil
	}

	subcommand := args[0]
	cfg, logger, err := loadRuntime("topics", args[1:])
	if err != nil {
		return err
	}

	admin, err := newTopicAdmin(&cfg.Cluster, logger)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	ctx := context.Background()
	specs := []kafka.TopicSpec{cfg.Topics.Input, cfg.Topics.Scored}

	switch subcommand {
	case "ensure":
		for _, spec := range specs {
			if err := admin.Ensure(ctx, spec); err != nil {
				return fmt.Errorf("ensure topic %s: %w", spec.Name, err)
			}
			fmt.Printf("Topic %s ready (partitions=%d, replication=%d)\n",
				spec.Name, spec.Partitions, spec.ReplicationFactor)
		}
		return nil
	case "delete":
		for _, spec := range specs {
			if err := admin.Delete(ctx, spec.Name); err != nil {
				return fmt.Errorf("delete topic %s: %w", spec.Name, err)
			}
			fmt.Printf("Topic %s deleted\n", spec.Name)
		}
		return nil
	case "flush":
		for _, spec := range specs {
			if err := admin.Flush(ctx, spec); err != nil {
				return fmt.Errorf("flush topic %s: %w", spec.Name, err)
			}
			fmt.Printf("Topic %s flushed\n", spec.Name)
		}
		return nil
	case "cleanup":
		keep := make(map[string]bool)
		for _, name := range cfg.Keep() {
			keep[name] = true
		}
		deleted, err := admin.Cleanup(ctx, keep)
		if err != nil {
			return fmt.Errorf("cleanup topics: %w", err)
		}
		if len(deleted) == 0 {
			fmt.Println("No topics to clean up")
			return nil
		}
		for _, name := range deleted {
			fmt.Printf("Topic %s deleted\n", name)
		}
		return nil
	default:
		return fmt.Errorf("unknown topics subcommand %q (must be ensure, delete, flush, or cleanup)", subcommand)
	}
}
