package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute key constants for consistent span attributes.
const (
	AttrEventID        = "churnflow.event_id"
	AttrModelVersion   = "churnflow.model_version"
	AttrKafkaTopic     = "messaging.kafka.topic"
	AttrKafkaPartition = "messaging.kafka.partition"
	AttrKafkaOffset    = "messaging.kafka.offset"
)

// Span name constants for consistent span naming.
const (
	SpanKafkaConsume = "kafka.consume"
	SpanKafkaPublish = "kafka.publish"
	SpanScore        = "churnflow.score"
)

// StartSpan starts a new span. With a nil tracer the span from ctx is
// reused, so call sites never need nil checks.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets the status to Error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK sets the span status to OK.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// EventIDAttr returns an event_id span attribute.
func EventIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

// ModelVersionAttr returns a model_version span attribute.
func ModelVersionAttr(v string) attribute.KeyValue {
	return attribute.String(AttrModelVersion, v)
}

// KafkaTopicAttr returns a topic span attribute.
func KafkaTopicAttr(topic string) attribute.KeyValue {
	return attribute.String(AttrKafkaTopic, topic)
}

// KafkaPartitionAttr returns a partition span attribute.
func KafkaPartitionAttr(partition int32) attribute.KeyValue {
	return attribute.Int(AttrKafkaPartition, int(partition))
}

// KafkaOffsetAttr returns an offset span attribute.
func KafkaOffsetAttr(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrKafkaOffset, offset)
}
