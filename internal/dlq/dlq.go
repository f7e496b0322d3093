// Package dlq parks permanently failed records on a dead-letter topic
// so one bad event never blocks its partition.
package dlq

import (
	"context"
	"fmt"
	"time"
)

// Publisher is the broker publish surface the handler needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// FailureInfo describes why a record is being parked.
type FailureInfo struct {
	OriginalTopic string
	Partition     int32
	Offset        int64
	ErrorCode     string
	ErrorMessage  string
	Attempts      int
}

// Handler publishes failed records to the dead-letter topic derived
// from the original topic name.
type Handler struct {
	publisher Publisher
	topicFn   func(originalTopic string) string
}

// Option configures a Handler.
type Option func(*Handler)

// WithTopicFunc overrides the default dead-letter topic naming.
func WithTopicFunc(fn func(originalTopic string) string) Option {
	return func(h *Handler) {
		h.topicFn = fn
	}
}

// NewHandler creates a dead-letter handler. The default dead-letter
// topic for topic T is "T.dlq".
func NewHandler(pub Publisher, opts ...Option) *Handler {
	h := &Handler{
		publisher: pub,
		topicFn:   func(originalTopic string) string { return originalTopic + ".dlq" },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Topic returns the dead-letter topic name for an input topic.
func (h *Handler) Topic(originalTopic string) string {
	return h.topicFn(originalTopic)
}

// Park publishes the failed record with failure metadata headers. A nil
// return means the parked copy is durable, so the caller may commit the
// original offset without losing the record.
func (h *Handler) Park(ctx context.Context, key, value []byte, info FailureInfo) error {
	topic := h.topicFn(info.OriginalTopic)

	headers := map[string]string{
		"churnflow-original-topic":     info.OriginalTopic,
		"churnflow-original-partition": fmt.Sprintf("%d", info.Partition),
		"churnflow-original-offset":    fmt.Sprintf("%d", info.Offset),
		"churnflow-error-code":         info.ErrorCode,
		"churnflow-error-message":      info.ErrorMessage,
		"churnflow-attempts":           fmt.Sprintf("%d", info.Attempts),
		"churnflow-failed-at":          time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.publisher.Publish(ctx, topic, key, value, headers); err != nil {
		return fmt.Errorf("dlq publish to %s: %w", topic, err)
	}
	return nil
}

// Close releases the underlying publisher.
func (h *Handler) Close() error {
	return h.publisher.Close()
}
