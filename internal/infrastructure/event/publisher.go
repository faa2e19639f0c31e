package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Publisher wraps facts into envelopes, sends them through the transport and opens a
// status ledger entry for the object each fact is about
type Publisher struct {
	transport  shared.Transport
	ledger     shared.StatusLedger
	serializer *EnvelopeSerializer
	logger     *zap.Logger
	metrics    Metrics
}

// PublisherOption is a functional option for Publisher
type PublisherOption func(*Publisher)

// WithPublisherMetrics sets the metrics sink
func WithPublisherMetrics(m Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a publisher. ledger may be nil, in which case no status is tracked.
func NewPublisher(transport shared.Transport, ledger shared.StatusLedger, logger *zap.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		transport:  transport,
		ledger:     ledger,
		serializer: NewEnvelopeSerializer(),
		logger:     logger,
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one envelope. Serialization and transport failures are returned; status
// ledger failures are logged only.
func (p *Publisher) Publish(ctx context.Context, t topic.Topic, payload shared.Payload, opts ...shared.PublishOption) error {
	env, msg, err := p.prepare(ctx, t, payload, opts)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartPublishSpan(ctx, env)
	defer span.End()
	if err := p.transport.Send(ctx, msg); err != nil {
		telemetry.RecordError(span, err)
		return asTransportError(err)
	}
	p.afterSend(ctx, env)
	return nil
}

// Batch starts a batch bound to this publisher
func (p *Publisher) Batch() *Batch {
	return &Batch{publisher: p}
}

// NewBatch implements shared.BatchPublisher
func (p *Publisher) NewBatch() shared.EnvelopeBatch {
	return p.Batch()
}

// prepare builds the envelope and its wire message
func (p *Publisher) prepare(ctx context.Context, t topic.Topic, payload shared.Payload, opts []shared.PublishOption) (*shared.Envelope, shared.Message, error) {
	if !t.IsValid() {
		return nil, shared.Message{}, fmt.Errorf("publish %q: %w", t, shared.ErrUnknownTopic)
	}

	o := shared.PublishOptions{Scope: shared.ScopePublic}
	for _, opt := range opts {
		opt(&o)
	}
	if cc, ok := shared.CausalFromContext(ctx); ok {
		if o.CorrelationID == "" {
			o.CorrelationID = cc.CorrelationID
		}
		if o.CausationTopic == "" {
			o.CausationTopic = cc.Topic
		}
		if o.TenantID == "" && !o.Global {
			o.TenantID = cc.TenantID
		}
	}
	if o.CorrelationID == "" {
		o.CorrelationID = uuid.NewString()
	}

	env := shared.NewEnvelope(t, payload, o.Scope)
	env.CorrelationID = o.CorrelationID
	env.CausationTopic = o.CausationTopic
	env.TenantID = o.TenantID
	env.PartitionKey = o.PartitionKey
	if env.PartitionKey == "" {
		env.PartitionKey = shared.ExtractObjectID(env.Payload)
	}
	if env.PartitionKey == "" {
		env.PartitionKey = env.CorrelationID
	}

	body, err := p.serializer.Serialize(env)
	if err != nil {
		return nil, shared.Message{}, err
	}
	msg := shared.Message{
		Topic:     env.Topic,
		Key:       env.PartitionKey,
		Partition: PartitionFor(env.PartitionKey, p.transport.Partitions()),
		Body:      body,
	}
	return env, msg, nil
}

// afterSend opens the status entry of a sent envelope
func (p *Publisher) afterSend(ctx context.Context, env *shared.Envelope) {
	p.metrics.RecordPublished(ctx, env.Topic)

	objectID, objectType := shared.ExtractObjectRef(env.Payload)
	if objectID == "" {
		p.logger.Debug("published envelope without object id",
			zap.String("topic", env.Topic.String()),
			zap.String("envelope_id", env.ID.String()),
		)
		return
	}
	if p.ledger == nil {
		return
	}

	created, err := p.ledger.Start(ctx, shared.StartInput{
		CorrelationID:  env.CorrelationID,
		ObjectID:       objectID,
		TenantID:       env.TenantID,
		Topic:          env.Topic,
		CausationTopic: env.CausationTopic,
		ObjectType:     objectType,
	})
	if err != nil {
		p.logger.Warn("failed to record status for published envelope",
			zap.String("topic", env.Topic.String()),
			zap.String("object_id", objectID),
			zap.String("correlation_id", env.CorrelationID),
			zap.Error(err),
		)
		return
	}
	if !created {
		p.logger.Debug("status already recorded",
			zap.String("topic", env.Topic.String()),
			zap.String("object_id", objectID),
		)
	}
}

func asTransportError(err error) error {
	var te *shared.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &shared.TransportError{Op: "send", Err: err}
}

// Batch collects envelopes and sends them in a single transport call.
// A Batch is safe for concurrent use.
type Batch struct {
	publisher *Publisher

	once    sync.Once
	mu      sync.Mutex
	envs    []*shared.Envelope
	pending []shared.Message
}

func (b *Batch) init() {
	b.once.Do(func() {
		b.envs = make([]*shared.Envelope, 0, 8)
		b.pending = make([]shared.Message, 0, 8)
	})
}

// Add validates and serializes the envelope and queues it. Nothing is sent until Flush.
func (b *Batch) Add(ctx context.Context, t topic.Topic, payload shared.Payload, opts ...shared.PublishOption) error {
	b.init()
	env, msg, err := b.publisher.prepare(ctx, t, payload, opts)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.envs = append(b.envs, env)
	b.pending = append(b.pending, msg)
	b.mu.Unlock()
	return nil
}

// Len returns the number of queued envelopes
func (b *Batch) Len() int {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush sends every queued envelope. On transport failure the queue is kept so the caller
// may retry.
func (b *Batch) Flush(ctx context.Context) error {
	b.init()
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	envs, msgs := b.envs, b.pending
	b.envs = make([]*shared.Envelope, 0, cap(envs))
	b.pending = make([]shared.Message, 0, cap(msgs))
	b.mu.Unlock()

	if err := b.publisher.transport.Send(ctx, msgs...); err != nil {
		b.mu.Lock()
		b.envs = append(envs, b.envs...)
		b.pending = append(msgs, b.pending...)
		b.mu.Unlock()
		return asTransportError(err)
	}
	for _, env := range envs {
		b.publisher.afterSend(ctx, env)
	}
	return nil
}

var (
	_ shared.BatchPublisher = (*Publisher)(nil)
	_ shared.EnvelopeBatch  = (*Batch)(nil)
)
