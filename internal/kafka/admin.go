package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrSpecConflict is returned by Ensure when the topic exists with a
// different partition count or replication factor. An existing topic is
// never silently reshaped.
var ErrSpecConflict = errors.New("topic exists with conflicting spec")

// TopicSpec describes one managed topic.
type TopicSpec struct {
	Name              string `yaml:"name"`
	Partitions        int32  `yaml:"partitions"`
	ReplicationFactor int16  `yaml:"replicationFactor"`
}

// Validate checks the spec fields.
func (s TopicSpec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("topic name is required"))
	}
	if s.Partitions < 1 {
		errs = append(errs, errors.New("partitions must be >= 1"))
	}
	if s.ReplicationFactor < 1 {
		errs = append(errs, errors.New("replicationFactor must be >= 1"))
	}
	return errors.Join(errs...)
}

// adminAPI abstracts the kadm client methods used by Admin for testing.
type adminAPI interface {
	ListTopics(ctx context.Context, topics ...string) (kadm.TopicDetails, error)
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
	DeleteTopics(ctx context.Context, topics ...string) (kadm.DeleteTopicResponses, error)
}

// Admin manages topic lifecycle: idempotent create, idempotent delete,
// flush (delete + recreate), and cleanup of unreferenced topics.
type Admin struct {
	api    adminAPI
	close  func()
	logger *slog.Logger
}

// NewAdmin creates a topic admin for the cluster.
func NewAdmin(cluster *ClusterConfig, logger *slog.Logger) (*Admin, error) {
	if cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := ClientOptions(cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka admin client: %w", err)
	}

	return &Admin{
		api:    kadm.NewClient(client),
		close:  client.Close,
		logger: logger,
	}, nil
}

// Ensure creates the topic if absent. An existing topic with a matching
// spec is a no-op; a mismatched spec is ErrSpecConflict.
func (a *Admin) Ensure(ctx context.Context, spec TopicSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("topic spec: %w", err)
	}

	details, err := a.api.ListTopics(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("list topic %s: %w", spec.Name, err)
	}
	if detail, ok := details[spec.Name]; ok && detail.Err == nil {
		return a.checkSpec(spec, detail)
	}

	responses, err := a.api.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	for _, resp := range responses {
		if resp.Err == nil || errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
	}

	a.logger.Info("topic created", "topic", spec.Name,
		"partitions", spec.Partitions, "replication", spec.ReplicationFactor)
	return nil
}

func (a *Admin) checkSpec(spec TopicSpec, detail kadm.TopicDetail) error {
	if int32(len(detail.Partitions)) != spec.Partitions {
		return fmt.Errorf("topic %s has %d partitions, want %d: %w",
			spec.Name, len(detail.Partitions), spec.Partitions, ErrSpecConflict)
	}
	for _, pd := range detail.Partitions {
		if int16(len(pd.Replicas)) != spec.ReplicationFactor {
			return fmt.Errorf("topic %s has replication factor %d, want %d: %w",
				spec.Name, len(pd.Replicas), spec.ReplicationFactor, ErrSpecConflict)
		}
		break
	}
	a.logger.Debug("topic already exists with matching spec", "topic", spec.Name)
	return nil
}

// Delete removes a topic. A topic that does not exist is not an error.
func (a *Admin) Delete(ctx context.Context, name string) error {
	responses, err := a.api.DeleteTopics(ctx, name)
	if err != nil {
		return fmt.Errorf("delete topic %s: %w", name, err)
	}
	for _, resp := range responses {
		if resp.Err == nil || errors.Is(resp.Err, kerr.UnknownTopicOrPartition) {
			continue
		}
		return fmt.Errorf("delete topic %s: %w", resp.Topic, resp.Err)
	}
	a.logger.Info("topic deleted", "topic", name)
	return nil
}

// Flush destroys all retained messages by deleting and recreating the
// topic. Committed offsets referencing the old topic become invalid;
// consumers treat them as reset-to-zero because their reset offset is
// "earliest".
func (a *Admin) Flush(ctx context.Context, spec TopicSpec) error {
	if err := a.Delete(ctx, spec.Name); err != nil {
		return err
	}
	return a.Ensure(ctx, spec)
}

// Cleanup deletes every non-internal topic not present in keep and
// returns the names deleted.
func (a *Admin) Cleanup(ctx context.Context, keep map[string]bool) ([]string, error) {
	details, err := a.api.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	var doomed []string
	for name := range details {
		if keep[name] || strings.HasPrefix(name, "__") {
			continue
		}
		doomed = append(doomed, name)
	}
	if len(doomed) == 0 {
		return nil, nil
	}

	responses, err := a.api.DeleteTopics(ctx, doomed...)
	if err != nil {
		return nil, fmt.Errorf("delete topics: %w", err)
	}
	var deleted []string
	var errs error
	for _, resp := range responses {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.UnknownTopicOrPartition) {
			errs = errors.Join(errs, fmt.Errorf("delete topic %s: %w", resp.Topic, resp.Err))
			continue
		}
		deleted = append(deleted, resp.Topic)
	}

	a.logger.Info("cleanup complete", "deleted", len(deleted))
	return deleted, errs
}

// Close releases the underlying client.
func (a *Admin) Close() {
	if a.close != nil {
		a.close()
	}
}
