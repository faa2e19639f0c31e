// Package meeting implements the meeting saga: ingestion with change detection, the
// participant and company fan-in, and goal generation for external meetings.
package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// GoalTrigger publishes generate-meeting-goals at most once per meeting version. The status
// record of the request is the guard: only the caller that creates it publishes.
type GoalTrigger struct {
	meetings  meeting.Repository
	ledger    shared.StatusLedger
	publisher shared.EnvelopePublisher
	logger    *zap.Logger
}

// NewGoalTrigger creates a goal trigger. A nil ledger disables the guard.
func NewGoalTrigger(
	meetings meeting.Repository,
	ledger shared.StatusLedger,
	publisher shared.EnvelopePublisher,
	logger *zap.Logger,
) *GoalTrigger {
	return &GoalTrigger{meetings: meetings, ledger: ledger, publisher: publisher, logger: logger}
}

// Fire requests goal generation for m unless it was already requested
func (g *GoalTrigger) Fire(ctx context.Context, m *meeting.Meeting) error {
	objectID := m.ID.String()
	if g.ledger != nil {
		cc, _ := shared.CausalFromContext(ctx)
		correlationID := cc.CorrelationID
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		created, err := g.ledger.Start(ctx, shared.StartInput{
			CorrelationID:  correlationID,
			ObjectID:       objectID,
			TenantID:       m.TenantID,
			Topic:          topic.GenerateMeetingGoals,
			CausationTopic: cc.Topic,
			ObjectType:     "meeting",
		})
		if err != nil {
			return fmt.Errorf("failed to guard goal generation of meeting %s: %w", objectID, err)
		}
		if !created {
			g.logger.Debug("goal generation already requested",
				zap.String("meeting_id", objectID),
				zap.String("tenant_id", m.TenantID),
			)
			return nil
		}
	}

	m.MarkGoals(meeting.GoalsPending, nil)
	if err := g.meetings.Upsert(ctx, m); err != nil {
		g.release(ctx, m)
		return fmt.Errorf("failed to save meeting %s: %w", objectID, err)
	}
	if err := g.publisher.Publish(ctx, topic.GenerateMeetingGoals,
		shared.Payload{"meeting_id": objectID},
		shared.WithTenant(m.TenantID),
	); err != nil {
		g.release(ctx, m)
		return fmt.Errorf("failed to request goals of meeting %s: %w", objectID, err)
	}

	g.logger.Info("goal generation requested",
		zap.String("meeting_id", objectID),
		zap.String("tenant_id", m.TenantID),
		zap.String("external_id", m.ExternalID),
	)
	return nil
}

// Reset forgets the goals of m so a changed meeting can fire again
func (g *GoalTrigger) Reset(ctx context.Context, m *meeting.Meeting) error {
	if g.ledger != nil {
		err := g.ledger.Delete(ctx, m.ID.String(), m.TenantID, topic.GenerateMeetingGoals)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to reset goal generation of meeting %s: %w", m.ID, err)
		}
	}
	m.MarkGoals(meeting.GoalsNone, nil)
	return nil
}

// release drops the guard of a request that was never published
func (g *GoalTrigger) release(ctx context.Context, m *meeting.Meeting) {
	if g.ledger == nil {
		return
	}
	if err := g.ledger.Delete(ctx, m.ID.String(), m.TenantID, topic.GenerateMeetingGoals); err != nil {
		g.logger.Warn("failed to release goal generation guard",
			zap.String("meeting_id", m.ID.String()),
			zap.Error(err),
		)
	}
}
