package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/topic"
)

// Scope controls who may observe an envelope's payload
type Scope string

const (
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
)

// IsValid reports whether the scope is one of the known values
func (s Scope) IsValid() bool {
	return s == ScopePublic || s == ScopePrivate
}

// Payload is a loosely-typed structured document carried by an envelope.
// Unknown fields are preserved and ignored by handlers that do not need them.
type Payload map[string]any

// String returns the string value stored under key, or "" when missing or not a string
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Object returns the nested document stored under key, or nil
func (p Payload) Object(key string) Payload {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v)
	case Payload:
		return v
	}
	return nil
}

// Clone returns a deep copy of the payload so the published envelope stays immutable
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case Payload:
		return t.Clone()
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Envelope wraps one published fact with its routing and causal metadata.
// Envelope field names are part of the wire contract shared with other implementations.
type Envelope struct {
	ID             uuid.UUID   `json:"id"`
	Topic          topic.Topic `json:"topic"`
	Payload        Payload     `json:"payload"`
	Scope          Scope       `json:"scope"`
	CorrelationID  string      `json:"correlation_id"`
	CausationTopic topic.Topic `json:"causation_topic,omitempty"`
	TenantID       string      `json:"tenant_id,omitempty"`
	PartitionKey   string      `json:"partition_key,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// NewEnvelope creates a new envelope with a generated ID and the current time
func NewEnvelope(t topic.Topic, payload Payload, scope Scope) *Envelope {
	if !scope.IsValid() {
		scope = ScopePublic
	}
	return &Envelope{
		ID:         uuid.New(),
		Topic:      t,
		Payload:    payload.Clone(),
		Scope:      scope,
		OccurredAt: time.Now().UTC(),
	}
}
