// Package notification turns terminal saga failures into operator notifications.
package notification

import (
	"context"
	"time"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// FailureHandler notifies about every failure topic. Delivery is best effort: a notifier
// error is logged and never blocks the bus.
type FailureHandler struct {
	notifier shared.Notifier
	tracker  *saga.Tracker
	logger   *zap.Logger
	now      func() time.Time
}

// NewFailureHandler creates a new handler for failure envelopes
func NewFailureHandler(notifier shared.Notifier, tracker *saga.Tracker, logger *zap.Logger) *FailureHandler {
	return &FailureHandler{notifier: notifier, tracker: tracker, logger: logger, now: time.Now}
}

func (h *FailureHandler) Name() string { return "failure-notification" }

func (h *FailureHandler) Subscribes() topic.Set { return topic.NewSet(topic.Failures()...) }

func (h *FailureHandler) Emits() topic.Set { return topic.NewSet() }

// Handle processes a failure envelope
func (h *FailureHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)

	msg := env.Payload.String("error")
	if msg == "" {
		msg = "saga ended in " + env.Topic.String()
	}
	n := shared.Notification{
		Topic:         env.Topic,
		TenantID:      env.TenantID,
		ObjectID:      step.ObjectID,
		CorrelationID: env.CorrelationID,
		CausedBy:      env.CausationTopic,
		Message:       msg,
		OccurredAt:    h.now().UTC(),
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.Warn("failed to deliver failure notification",
			zap.String("topic", env.Topic.String()),
			zap.String("object_id", n.ObjectID),
			zap.String("correlation_id", n.CorrelationID),
			zap.Error(err),
		)
	}
	step.Complete(ctx)
	return nil
}

var _ saga.Handler = (*FailureHandler)(nil)
