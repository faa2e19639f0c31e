package shared

import (
	"context"
	"time"

	"github.com/meetprep/backend/internal/domain/topic"
)

// Message is a serialized envelope addressed to one partition of the bus
type Message struct {
	Topic     topic.Topic
	Key       string
	Partition int
	Body      []byte
}

// Delivery is one message handed to a consumer together with its position
type Delivery struct {
	Partition int
	Offset    string
	Message   Message
}

// DeliveryFunc processes one delivery. The consumer never starts the next delivery
// of the same member until the function returns.
type DeliveryFunc func(ctx context.Context, d Delivery)

// CursorFunc returns the offset after which consumption of a partition resumes.
// "" means from the oldest retained message.
type CursorFunc func(ctx context.Context, partition int) (string, error)

// ConsumeRequest identifies a consumer group member
type ConsumeRequest struct {
	Group  string
	Member string
	Cursor CursorFunc
}

// Transport is the broker abstraction the bus runs on.
// Send must either hand every message to the broker or return an error.
type Transport interface {
	// Send appends messages to their partitions
	Send(ctx context.Context, msgs ...Message) error
	// Consume blocks, delivering messages of the partitions currently owned by the member,
	// until ctx is cancelled. Delivery resumes after the group's checkpoint.
	Consume(ctx context.Context, req ConsumeRequest, fn DeliveryFunc) error
	// Partitions returns the partition count
	Partitions() int
}

// Compactor is implemented by transports that can drop history every known group has passed
type Compactor interface {
	Compact(ctx context.Context) (int64, error)
}

// Checkpoint is the durable cursor of a consumer group on one partition
type Checkpoint struct {
	Group     string
	Partition int
	Offset    string
	UpdatedAt time.Time
}

// CheckpointStore persists checkpoints keyed by (group, partition)
type CheckpointStore interface {
	// Load returns the last committed offset, or "" when the group never committed
	Load(ctx context.Context, group string, partition int) (string, error)
	// Commit stores offset as the last processed position
	Commit(ctx context.Context, group string, partition int, offset string) error
	// List returns every checkpoint, optionally filtered by group
	List(ctx context.Context, group string) ([]Checkpoint, error)
}

// EnvelopeHandler reacts to one envelope
type EnvelopeHandler interface {
	// Handle processes the envelope. Returned errors are logged at the dispatch
	// boundary and never block the checkpoint.
	Handle(ctx context.Context, env *Envelope) error
	// Name identifies the handler in logs and metrics
	Name() string
}

// EnvelopeHandlerFunc adapts a function to EnvelopeHandler
type EnvelopeHandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, env *Envelope) error
}

// Handle implements EnvelopeHandler
func (f EnvelopeHandlerFunc) Handle(ctx context.Context, env *Envelope) error {
	return f.Fn(ctx, env)
}

// Name implements EnvelopeHandler
func (f EnvelopeHandlerFunc) Name() string {
	return f.HandlerName
}

// PublishOptions carries the optional envelope metadata of a publish call
type PublishOptions struct {
	Scope          Scope
	CorrelationID  string
	CausationTopic topic.Topic
	TenantID       string
	PartitionKey   string
	// Global drops the tenant instead of inheriting it
	Global bool
}

// PublishOption mutates PublishOptions
type PublishOption func(*PublishOptions)

// WithScope sets the envelope scope (default public)
func WithScope(s Scope) PublishOption {
	return func(o *PublishOptions) { o.Scope = s }
}

// WithCorrelationID sets the correlation id instead of inheriting it
func WithCorrelationID(id string) PublishOption {
	return func(o *PublishOptions) { o.CorrelationID = id }
}

// WithCausation sets the causation topic instead of inheriting it
func WithCausation(t topic.Topic) PublishOption {
	return func(o *PublishOptions) { o.CausationTopic = t }
}

// WithTenant sets the tenant instead of inheriting it
func WithTenant(tenantID string) PublishOption {
	return func(o *PublishOptions) { o.TenantID = tenantID }
}

// Global publishes the envelope without a tenant. Facts about objects every tenant shares,
// such as companies, are global.
func Global() PublishOption {
	return func(o *PublishOptions) {
		o.Global = true
		o.TenantID = ""
	}
}

// WithPartitionKey overrides the partitioning key
func WithPartitionKey(key string) PublishOption {
	return func(o *PublishOptions) { o.PartitionKey = key }
}

// EnvelopePublisher publishes facts onto the bus
type EnvelopePublisher interface {
	Publish(ctx context.Context, t topic.Topic, payload Payload, opts ...PublishOption) error
}

// EnvelopeBatch queues envelopes and sends them in a single transport call on Flush
type EnvelopeBatch interface {
	Add(ctx context.Context, t topic.Topic, payload Payload, opts ...PublishOption) error
	Flush(ctx context.Context) error
}

// BatchPublisher is a publisher that can also send batches
type BatchPublisher interface {
	EnvelopePublisher
	NewBatch() EnvelopeBatch
}
