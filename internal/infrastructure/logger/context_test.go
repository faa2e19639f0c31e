package logger

import (
	"context"
	"testing"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fieldMap(entry observer.LoggedEntry) map[string]string {
	out := make(map[string]string)
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

func TestFromContext(t *testing.T) {
	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestGetTenantID_FallsBackToCausalContext(t *testing.T) {
	ctx := shared.WithCausalContext(context.Background(), shared.CausalContext{
		CorrelationID: "corr-1",
		Topic:         topic.NewMeeting,
		TenantID:      "acme",
	})
	assert.Equal(t, "acme", GetTenantID(ctx))
	assert.Equal(t, "corr-1", GetCorrelationID(ctx))

	ctx, _ = WithTenantID(ctx, zap.NewNop(), "globex")
	assert.Equal(t, "globex", GetTenantID(ctx))
}

func TestGetCorrelationID_Empty(t *testing.T) {
	assert.Empty(t, GetCorrelationID(context.Background()))
	assert.Empty(t, GetTenantID(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetSpanID(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
	assert.Equal(t, "00f067aa0ba902b7", GetSpanID(ctx))
}

func TestContextLogger_EnrichesWithSagaFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = shared.WithCausalContext(ctx, shared.CausalContext{
		CorrelationID: "corr-9",
		Topic:         topic.NewPerson,
		TenantID:      "acme",
	})
	ctx, _ = WithRequestID(ctx, FromContext(ctx), "req-1")

	L(ctx).Info("person enriched")

	entries := recorded.FilterMessage("person enriched").All()
	require.Len(t, entries, 1)
	fields := fieldMap(entries[0])
	assert.Equal(t, "corr-9", fields["correlation_id"])
	assert.Equal(t, topic.NewPerson.String(), fields["causation_topic"])
	assert.Equal(t, "acme", fields["tenant_id"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Debug("debug")
		cl.Warn("warn")
		cl.With(zap.String("k", "v")).Error("error")
	})
}

func TestEnvelopeFields(t *testing.T) {
	env := shared.NewEnvelope(topic.NewCompany, shared.Payload{"domain": "acme.com"}, shared.ScopePublic)
	env.CorrelationID = "corr-2"
	env.TenantID = "acme"

	core, recorded := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("handled", EnvelopeFields(env)...)

	fields := fieldMap(recorded.All()[0])
	assert.Equal(t, env.ID.String(), fields["envelope_id"])
	assert.Equal(t, topic.NewCompany.String(), fields["topic"])
	assert.Equal(t, "corr-2", fields["correlation_id"])
	assert.Nil(t, EnvelopeFields(nil))
}
