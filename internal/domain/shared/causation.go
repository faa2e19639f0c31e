package shared

import (
	"context"

	"github.com/meetprep/backend/internal/domain/topic"
)

// CausalContext is the metadata of the envelope currently being handled.
// Envelopes published while handling inherit it.
type CausalContext struct {
	CorrelationID string
	Topic         topic.Topic
	TenantID      string
}

type causalKey struct{}

// WithCausalContext installs cc as the ambient causal context
func WithCausalContext(ctx context.Context, cc CausalContext) context.Context {
	return context.WithValue(ctx, causalKey{}, cc)
}

// CausalContextFromEnvelope builds the context a handler of env runs in
func CausalContextFromEnvelope(env *Envelope) CausalContext {
	return CausalContext{
		CorrelationID: env.CorrelationID,
		Topic:         env.Topic,
		TenantID:      env.TenantID,
	}
}

// CausalFromContext returns the ambient causal context, if any
func CausalFromContext(ctx context.Context) (CausalContext, bool) {
	if ctx == nil {
		return CausalContext{}, false
	}
	cc, ok := ctx.Value(causalKey{}).(CausalContext)
	return cc, ok
}
