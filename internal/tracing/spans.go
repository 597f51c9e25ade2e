package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute key constants for consistent span attributes across the
// bridge's log read, recovery, flush and provider read spans.
const (
	AttrScope       = "counterbridge.scope"
	AttrDelta       = "counterbridge.delta"
	AttrBatchSize   = "counterbridge.batch_size"
	AttrScopeCount  = "counterbridge.scope_count"
	AttrFailedCount = "counterbridge.failed_scope_count"
	AttrKafkaTopic  = "messaging.kafka.topic"
	AttrErrorType   = "error.type"
)

// Span name constants for consistent span naming.
const (
	SpanEventLogRead    = "eventlog.read"
	SpanEventLogRecover = "eventlog.recover"
	SpanFlushRun        = "flush.run"
	SpanProviderGet     = "provider.get"
)

// StartSpan starts a new span with the given name and options.
// Returns the new context with the span and the span itself.
// If tracer is nil, returns a no-op span.
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

// SetSpanOK sets the span status to Ok.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// ScopeAttr returns an attribute for a counter scope.
func ScopeAttr(scope string) attribute.KeyValue {
	return attribute.String(AttrScope, scope)
}

// DeltaAttr returns an attribute for a signed delta.
func DeltaAttr(delta int64) attribute.KeyValue {
	return attribute.Int64(AttrDelta, delta)
}

// BatchSizeAttr returns an attribute for a flush batch's event count.
func BatchSizeAttr(size int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, size)
}

// ScopeCountAttr returns an attribute for a flush batch's distinct
// scope count.
func ScopeCountAttr(count int) attribute.KeyValue {
	return attribute.Int(AttrScopeCount, count)
}

// FailedCountAttr returns an attribute for the number of scopes a
// partial flush failure reported.
func FailedCountAttr(count int) attribute.KeyValue {
	return attribute.Int(AttrFailedCount, count)
}

// KafkaTopicAttr returns an attribute for the Kafka topic backing the
// event log.
func KafkaTopicAttr(topic string) attribute.KeyValue {
	return attribute.String(AttrKafkaTopic, topic)
}

// ErrorTypeAttr returns an attribute for the error type.
func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String(AttrErrorType, errType)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// IsTraced returns true if there is a valid recording span in the context.
func IsTraced(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}
