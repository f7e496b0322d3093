package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer abstracts the kgo client methods used by Publisher for testing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher publishes records synchronously and waits for the broker
// acknowledgement, so a nil return means the record is durable.
type Publisher struct {
	client producer
}

// NewPublisher creates a publisher for the cluster.
func NewPublisher(cluster *ClusterConfig) (*Publisher, error) {
	if cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}

	opts, err := ClientOptions(cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher client: %w", err)
	}

	return &Publisher{client: client}, nil
}

// Publish sends one record to topic and waits for the ack.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

// Close shuts down the publisher.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}
