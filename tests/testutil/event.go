// Package testutil provides common test utilities for the enrichment backend.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
)

// MockEnvelopeHandler is a recording implementation of shared.EnvelopeHandler for testing.
type MockEnvelopeHandler struct {
	mu      sync.Mutex
	name    string
	handled []*shared.Envelope
	err     error
}

// NewMockEnvelopeHandler creates a new mock envelope handler.
func NewMockEnvelopeHandler(name string) *MockEnvelopeHandler {
	return &MockEnvelopeHandler{name: name}
}

// Name returns the handler name.
func (h *MockEnvelopeHandler) Name() string {
	return h.name
}

// Handle records the envelope.
func (h *MockEnvelopeHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, env)
	return h.err
}

// Handled returns all handled envelopes.
func (h *MockEnvelopeHandler) Handled() []*shared.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]*shared.Envelope, len(h.handled))
	copy(result, h.handled)
	return result
}

// HandledCount returns the number of handled envelopes.
func (h *MockEnvelopeHandler) HandledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

// SetError sets the error to return from Handle.
func (h *MockEnvelopeHandler) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Reset clears all handled envelopes.
func (h *MockEnvelopeHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = nil
	h.err = nil
}

// NewTestEnvelope creates an envelope as a worker would hand it to a handler.
func NewTestEnvelope(t topic.Topic, tenantID string, payload shared.Payload) *shared.Envelope {
	env := shared.NewEnvelope(t, payload, shared.ScopePublic)
	env.TenantID = tenantID
	env.CorrelationID = "corr-" + env.ID.String()[:8]
	return env
}

// HandlerContext returns the context a worker runs the handler of env in.
func HandlerContext(env *shared.Envelope) context.Context {
	return shared.WithCausalContext(context.Background(), shared.CausalContextFromEnvelope(env))
}

// Published is one envelope captured by RecordingPublisher.
type Published struct {
	Topic   topic.Topic
	Payload shared.Payload
	Options shared.PublishOptions
	Causal  shared.CausalContext
}

// TenantID returns the tenant the envelope would carry after causal inheritance.
func (p Published) TenantID() string {
	if p.Options.TenantID != "" || p.Options.Global {
		return p.Options.TenantID
	}
	return p.Causal.TenantID
}

// RecordingPublisher is an in-memory shared.BatchPublisher that records what handlers emit.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []Published
	err       error
	flushes   int
}

// NewRecordingPublisher creates an empty recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records the envelope.
func (p *RecordingPublisher) Publish(ctx context.Context, t topic.Topic, payload shared.Payload, opts ...shared.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, newPublished(ctx, t, payload, opts))
	return nil
}

// NewBatch returns a batch that records on Flush.
func (p *RecordingPublisher) NewBatch() shared.EnvelopeBatch {
	return &recordingBatch{publisher: p}
}

// SetError makes every later publish fail with err.
func (p *RecordingPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// All returns every recorded envelope in publish order.
func (p *RecordingPublisher) All() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// Topics returns the topics of the recorded envelopes in publish order.
func (p *RecordingPublisher) Topics() []topic.Topic {
	all := p.All()
	out := make([]topic.Topic, len(all))
	for i, e := range all {
		out[i] = e.Topic
	}
	return out
}

// ByTopic returns the recorded envelopes of topic t.
func (p *RecordingPublisher) ByTopic(t topic.Topic) []Published {
	var out []Published
	for _, e := range p.All() {
		if e.Topic == t {
			out = append(out, e)
		}
	}
	return out
}

// Flushes returns how many batches were flushed.
func (p *RecordingPublisher) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Reset forgets every recorded envelope.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = nil
	p.flushes = 0
	p.err = nil
}

func newPublished(ctx context.Context, t topic.Topic, payload shared.Payload, opts []shared.PublishOption) Published {
	var o shared.PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	cc, _ := shared.CausalFromContext(ctx)
	return Published{Topic: t, Payload: payload.Clone(), Options: o, Causal: cc}
}

type recordingBatch struct {
	publisher *RecordingPublisher
	queued    []Published
}

func (b *recordingBatch) Add(ctx context.Context, t topic.Topic, payload shared.Payload, opts ...shared.PublishOption) error {
	b.queued = append(b.queued, newPublished(ctx, t, payload, opts))
	return nil
}

func (b *recordingBatch) Flush(ctx context.Context) error {
	p := b.publisher
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, b.queued...)
	p.flushes++
	b.queued = nil
	return nil
}

// WaitForCondition waits for a condition to become true.
// Returns true if the condition was met, false if timeout occurred.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

// WaitForEnvelopeCount waits until the handler has processed at least n envelopes.
func WaitForEnvelopeCount(t *testing.T, handler *MockEnvelopeHandler, count int, timeout time.Duration) bool {
	t.Helper()

	return WaitForCondition(t, func() bool {
		return handler.HandledCount() >= count
	}, timeout, 10*time.Millisecond)
}

var _ shared.BatchPublisher = (*RecordingPublisher)(nil)
