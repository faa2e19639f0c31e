// Package saga holds what every enrichment saga handler shares: the status step of the
// envelope being handled and the handler contract the bus dispatches on.
package saga

import (
	"context"
	"errors"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// Handler is an envelope handler that declares which topics it consumes and emits
type Handler interface {
	shared.EnvelopeHandler
	Subscribes() topic.Set
	Emits() topic.Set
}

// Tracker moves the status record of handled envelopes through their states.
// Ledger failures are logged and never fail the handler.
type Tracker struct {
	ledger shared.StatusLedger
	logger *zap.Logger
}

// NewTracker creates a tracker. A nil ledger disables status tracking.
func NewTracker(ledger shared.StatusLedger, logger *zap.Logger) *Tracker {
	return &Tracker{ledger: ledger, logger: logger}
}

// Ledger returns the underlying status ledger
func (t *Tracker) Ledger() shared.StatusLedger {
	return t.ledger
}

// Step is the status record of one handled envelope, keyed by the object its payload is about
type Step struct {
	tracker  *Tracker
	ObjectID string
	TenantID string
	Topic    topic.Topic
	// Previous is the record as it was before the handler ran, nil when it was missing
	Previous *shared.StatusRecord
}

// Begin loads the record of env, opening it when the publish-time start was lost
func (t *Tracker) Begin(ctx context.Context, env *shared.Envelope) *Step {
	objectID, objectType := shared.ExtractObjectRef(env.Payload)
	step := &Step{tracker: t, ObjectID: objectID, TenantID: env.TenantID, Topic: env.Topic}
	if t.ledger == nil || objectID == "" {
		return step
	}

	rec, err := t.ledger.Get(ctx, objectID, env.TenantID, env.Topic)
	switch {
	case err == nil:
		step.Previous = rec
	case errors.Is(err, shared.ErrNotFound):
		if _, err := t.ledger.Start(ctx, shared.StartInput{
			CorrelationID:  env.CorrelationID,
			ObjectID:       objectID,
			TenantID:       env.TenantID,
			Topic:          env.Topic,
			CausationTopic: env.CausationTopic,
			ObjectType:     objectType,
		}); err != nil {
			step.warn("failed to open status record", err)
		}
	default:
		step.warn("failed to load status record", err)
	}
	return step
}

// Completed reports whether an earlier run already completed the step
func (s *Step) Completed() bool {
	return s.Previous != nil && s.Previous.State == shared.StatusCompleted
}

// Processing marks the step as running or waiting on a dependency
func (s *Step) Processing(ctx context.Context) {
	s.set(ctx, shared.StatusProcessing, "")
}

// Complete marks the step as done
func (s *Step) Complete(ctx context.Context) {
	s.set(ctx, shared.StatusCompleted, "")
}

// Fail marks the step as failed with the error message of cause
func (s *Step) Fail(ctx context.Context, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.set(ctx, shared.StatusFailed, msg)
}

func (s *Step) set(ctx context.Context, state shared.StatusState, errMsg string) {
	if s.tracker.ledger == nil || s.ObjectID == "" {
		return
	}
	if err := s.tracker.ledger.Update(ctx, s.ObjectID, s.TenantID, s.Topic, state, errMsg); err != nil {
		s.warn("failed to update status record", err, zap.String("state", string(state)))
	}
}

func (s *Step) warn(msg string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("object_id", s.ObjectID),
		zap.String("tenant_id", s.TenantID),
		zap.String("topic", s.Topic.String()),
		zap.Error(err),
	)
	s.tracker.logger.Warn(msg, fields...)
}
