package event

import (
	"context"
	"sync/atomic"

	"github.com/meetprep/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics tracks idempotency-related statistics
type IdempotencyMetrics struct {
	// Processed is the number of envelopes handled for the first time
	Processed atomic.Int64

	// Duplicate is the number of redeliveries absorbed
	Duplicate atomic.Int64

	// Failed is the number of envelopes whose handler returned an error
	Failed atomic.Int64
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed: m.Processed.Load(),
		Duplicate: m.Duplicate.Load(),
		Failed:    m.Failed.Load(),
	}
}

// IdempotencyStats is a snapshot of idempotency metrics
type IdempotencyStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// IdempotentHandler wraps an EnvelopeHandler with envelope-id deduplication.
// Transports deliver at least once; the wrapper absorbs redeliveries of the same envelope.
type IdempotentHandler struct {
	handler shared.EnvelopeHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics sets the metrics collector
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.EnvelopeHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Name returns the wrapped handler's name
func (h *IdempotentHandler) Name() string {
	return h.handler.Name()
}

// Handle processes the envelope unless this handler already processed it
func (h *IdempotentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, env)
	}

	// keyed per handler: several handlers may consume the same envelope
	key := env.ID.String() + ":" + h.handler.Name()

	isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		// Better to risk duplicate processing than to drop envelopes
		h.logger.Warn("failed to check idempotency, processing anyway",
			zap.String("envelope_id", env.ID.String()),
			zap.String("topic", env.Topic.String()),
			zap.Error(err),
		)
	} else if !isNew {
		h.metrics.Duplicate.Add(1)
		h.logger.Debug("duplicate envelope detected, skipping",
			zap.String("envelope_id", env.ID.String()),
			zap.String("topic", env.Topic.String()),
			zap.String("handler", h.handler.Name()),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, env); err != nil {
		h.metrics.Failed.Add(1)
		// The key is kept on failure; it expires after the TTL
		return err
	}

	h.metrics.Processed.Add(1)
	return nil
}

// GetMetrics returns the metrics for this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

// GetWrappedHandler returns the underlying handler (useful for testing)
func (h *IdempotentHandler) GetWrappedHandler() shared.EnvelopeHandler {
	return h.handler
}

// Ensure IdempotentHandler implements EnvelopeHandler
var _ shared.EnvelopeHandler = (*IdempotentHandler)(nil)

// WrapDispatchTable returns a copy of table whose handlers are wrapped with deduplication
func WrapDispatchTable(
	table *DispatchTable,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *DispatchTable {
	wrapped := NewDispatchTable()
	for t, hs := range table.handlers {
		for _, h := range hs {
			wrapped.handlers[t] = append(wrapped.handlers[t], NewIdempotentHandler(h, store, logger, opts...))
		}
	}
	wrapped.nodes = table.nodes
	return wrapped
}
