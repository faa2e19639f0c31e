package telemetry

import (
	"context"
	"fmt"

	"github.com/meetprep/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of every span this service starts
const TracerName = "github.com/meetprep/backend"

// Span attribute keys of bus spans
const (
	SpanAttrEnvelopeID    = "messaging.message.id"
	SpanAttrTopic         = "messaging.destination.name"
	SpanAttrPartition     = "messaging.destination.partition.id"
	SpanAttrGroup         = "messaging.consumer.group.name"
	SpanAttrCorrelationID = "meetprep.correlation_id"
	SpanAttrTenantID      = "meetprep.tenant_id"
	SpanAttrHandler       = "meetprep.handler"
	SpanAttrProvider      = "meetprep.provider"
)

// SpanOption is a function that configures span start options
type SpanOption func(*spanOptions)

type spanOptions struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute adds an attribute to the span
func WithAttribute(key string, value any) SpanOption {
	return func(opts *spanOptions) {
		opts.attributes = append(opts.attributes, toAttribute(key, value))
	}
}

// WithSpanKind sets the span kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(opts *spanOptions) {
		opts.kind = kind
	}
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
//
//	ctx, span := telemetry.StartSpan(ctx, "company.enrich")
//	defer span.End()
func StartSpan(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, trace.Span) {
	options := &spanOptions{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(options)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(options.kind)}
	if len(options.attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(options.attributes...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, spanName, startOpts...)
}

// StartPublishSpan starts the producer span of one envelope
func StartPublishSpan(ctx context.Context, env *shared.Envelope) (context.Context, trace.Span) {
	return StartSpan(ctx, "publish "+env.Topic.String(),
		WithSpanKind(trace.SpanKindProducer),
		WithAttribute(SpanAttrEnvelopeID, env.ID.String()),
		WithAttribute(SpanAttrTopic, env.Topic.String()),
		WithAttribute(SpanAttrCorrelationID, env.CorrelationID),
		WithAttribute(SpanAttrTenantID, env.TenantID),
	)
}

// StartHandleSpan starts the consumer span of one handler invocation
func StartHandleSpan(ctx context.Context, group, handler string, env *shared.Envelope) (context.Context, trace.Span) {
	return StartSpan(ctx, "handle "+env.Topic.String(),
		WithSpanKind(trace.SpanKindConsumer),
		WithAttribute(SpanAttrEnvelopeID, env.ID.String()),
		WithAttribute(SpanAttrTopic, env.Topic.String()),
		WithAttribute(SpanAttrGroup, group),
		WithAttribute(SpanAttrHandler, handler),
		WithAttribute(SpanAttrCorrelationID, env.CorrelationID),
		WithAttribute(SpanAttrTenantID, env.TenantID),
	)
}

// RecordError records err on the span and marks the span failed
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as successful.
func SetOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event built from alternating key/value pairs
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
