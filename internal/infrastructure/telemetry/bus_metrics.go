package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/domain/topic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrTopic    = attribute.Key("topic")
	AttrGroup    = attribute.Key("group")
	AttrHandler  = attribute.Key("handler")
	AttrOutcome  = attribute.Key("outcome")
	AttrProvider = attribute.Key("provider")
)

// Outcomes recorded on handler and provider metrics
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNotFound = "not_found"
)

// durationBuckets are seconds, from fast in-process handlers to slow provider calls
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// BusMetrics records bus and provider activity as OpenTelemetry instruments
type BusMetrics struct {
	published        metric.Int64Counter
	delivered        metric.Int64Counter
	handled          metric.Int64Counter
	handlerDuration  metric.Float64Histogram
	providerCalls    metric.Int64Counter
	providerDuration metric.Float64Histogram
}

// NewBusMetrics creates the instruments on meter
func NewBusMetrics(meter metric.Meter) (*BusMetrics, error) {
	m := &BusMetrics{}
	var err error

	if m.published, err = meter.Int64Counter("meetprep.bus.published",
		metric.WithDescription("Envelopes handed to the transport"),
		metric.WithUnit("{envelope}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create published counter: %w", err)
	}
	if m.delivered, err = meter.Int64Counter("meetprep.bus.delivered",
		metric.WithDescription("Deliveries received by consumer group members"),
		metric.WithUnit("{delivery}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create delivered counter: %w", err)
	}
	if m.handled, err = meter.Int64Counter("meetprep.bus.handled",
		metric.WithDescription("Handler invocations by outcome"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create handled counter: %w", err)
	}
	if m.handlerDuration, err = meter.Float64Histogram("meetprep.bus.handler.duration",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create handler duration histogram: %w", err)
	}
	if m.providerCalls, err = meter.Int64Counter("meetprep.provider.calls",
		metric.WithDescription("Enrichment provider calls by outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create provider counter: %w", err)
	}
	if m.providerDuration, err = meter.Float64Histogram("meetprep.provider.duration",
		metric.WithDescription("Enrichment provider call latency including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create provider duration histogram: %w", err)
	}
	return m, nil
}

// RecordPublished counts one published envelope
func (m *BusMetrics) RecordPublished(ctx context.Context, t topic.Topic) {
	m.published.Add(ctx, 1, metric.WithAttributes(AttrTopic.String(t.String())))
}

// RecordDelivered counts one delivery to a group member
func (m *BusMetrics) RecordDelivered(ctx context.Context, group string, t topic.Topic) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(
		AttrGroup.String(group),
		AttrTopic.String(t.String()),
	))
}

// RecordHandled counts one handler invocation and its duration
func (m *BusMetrics) RecordHandled(ctx context.Context, handler string, t topic.Topic, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	attrs := metric.WithAttributes(
		AttrHandler.String(handler),
		AttrTopic.String(t.String()),
		AttrOutcome.String(outcome),
	)
	m.handled.Add(ctx, 1, attrs)
	m.handlerDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordProviderCall counts one provider call and its latency
func (m *BusMetrics) RecordProviderCall(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		AttrProvider.String(provider),
		AttrOutcome.String(outcome),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerDuration.Record(ctx, elapsed.Seconds(), attrs)
}
