package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// IngestionHandler handles new-meeting. It deduplicates by external id, detects what
// changed since the stored version and, for external meetings, discovers every external
// participant and opens the fan-in that gates goal generation. The fan-in itself is fed by
// JoinHandler, starting with the meeting-ingested fact published here.
type IngestionHandler struct {
	meetings  meeting.Repository
	joins     meeting.JoinStore
	trigger   *GoalTrigger
	publisher shared.BatchPublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewIngestionHandler creates a new handler for new-meeting envelopes
func NewIngestionHandler(
	meetings meeting.Repository,
	joins meeting.JoinStore,
	trigger *GoalTrigger,
	publisher shared.BatchPublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *IngestionHandler {
	return &IngestionHandler{
		meetings:  meetings,
		joins:     joins,
		trigger:   trigger,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *IngestionHandler) Name() string { return "meeting-ingestion" }

func (h *IngestionHandler) Subscribes() topic.Set { return topic.NewSet(topic.NewMeeting) }

func (h *IngestionHandler) Emits() topic.Set {
	return topic.NewSet(topic.NewPerson, topic.MeetingIngested, topic.GenerateMeetingGoals)
}

// Handle processes a new-meeting envelope
func (h *IngestionHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	in, err := meeting.InputFromPayload(env.TenantID, env.Payload)
	if err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("invalid new-meeting payload: %w", err)
	}
	incoming, err := meeting.New(in)
	if err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("invalid new-meeting payload: %w", err)
	}

	m, participantsChanged, err := h.reconcile(ctx, incoming)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}
	if m == nil {
		step.Complete(ctx)
		h.logger.Debug("meeting unchanged",
			zap.String("external_id", incoming.ExternalID),
			zap.String("tenant_id", incoming.TenantID),
		)
		return nil
	}

	if m.Classification != meeting.ClassExternal {
		step.Complete(ctx)
		h.logger.Info("meeting ingested",
			zap.String("meeting_id", m.ID.String()),
			zap.String("classification", string(m.Classification)),
		)
		return nil
	}

	if participantsChanged {
		err = h.discover(ctx, m)
	} else {
		err = h.regenerate(ctx, m)
	}
	if err != nil {
		step.Fail(ctx, err)
		return err
	}
	step.Complete(ctx)

	h.logger.Info("external meeting ingested",
		zap.String("meeting_id", m.ID.String()),
		zap.String("external_id", m.ExternalID),
		zap.String("tenant_id", m.TenantID),
		zap.Int("external_participants", len(m.ExternalParticipants())),
		zap.Bool("participants_changed", participantsChanged),
	)
	return nil
}

// reconcile stores incoming or merges it into the stored version. A nil meeting means the
// stored version already has the same content.
func (h *IngestionHandler) reconcile(ctx context.Context, incoming *meeting.Meeting) (*meeting.Meeting, bool, error) {
	stored, err := h.meetings.GetByExternalID(ctx, incoming.TenantID, incoming.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		if err := h.meetings.Upsert(ctx, incoming); err != nil {
			return nil, false, fmt.Errorf("failed to save meeting %s: %w", incoming.ExternalID, err)
		}
		return incoming, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load meeting %s: %w", incoming.ExternalID, err)
	}

	change := meeting.Diff(stored, incoming)
	if change.Unchanged {
		return nil, false, nil
	}
	stored.Apply(incoming)
	if change.ParticipantsChanged {
		if err := h.joins.Reset(ctx, stored.ID.String()); err != nil {
			return nil, false, fmt.Errorf("failed to reset join of meeting %s: %w", stored.ID, err)
		}
		if err := h.trigger.Reset(ctx, stored); err != nil {
			return nil, false, err
		}
	}
	if err := h.meetings.Upsert(ctx, stored); err != nil {
		return nil, false, fmt.Errorf("failed to save meeting %s: %w", stored.ExternalID, err)
	}
	return stored, change.ParticipantsChanged, nil
}

// discover watches the external participants and their companies and announces them
func (h *IngestionHandler) discover(ctx context.Context, m *meeting.Meeting) error {
	external := m.ExternalParticipants()
	emails := make([]string, len(external))
	for i, p := range external {
		emails[i] = p.Email
	}
	meetingID := m.ID.String()
	if err := h.joins.Watch(ctx, meetingID, emails, m.ExternalDomains()); err != nil {
		return fmt.Errorf("failed to watch participants of meeting %s: %w", meetingID, err)
	}

	batch := h.publisher.NewBatch()
	for _, p := range external {
		payload := shared.Payload{"email": p.Email}
		if p.Name != "" {
			payload["name"] = p.Name
		}
		if err := batch.Add(ctx, topic.NewPerson, payload, shared.WithTenant(m.TenantID)); err != nil {
			return fmt.Errorf("failed to queue participant %s: %w", p.Email, err)
		}
	}
	if err := batch.Add(ctx, topic.MeetingIngested, shared.Payload{
		"meeting_id":     meetingID,
		"external_id":    m.ExternalID,
		"classification": string(m.Classification),
	}, shared.WithTenant(m.TenantID)); err != nil {
		return fmt.Errorf("failed to queue meeting-ingested: %w", err)
	}
	if err := batch.Flush(ctx); err != nil {
		return fmt.Errorf("failed to publish participants of meeting %s: %w", meetingID, err)
	}
	return nil
}

// regenerate handles a content change with the same participants: the fan-in is already
// complete or still pending, so goals are only requested again when it is complete
func (h *IngestionHandler) regenerate(ctx context.Context, m *meeting.Meeting) error {
	parts, err := h.joins.Parts(ctx, m.ID.String())
	if err != nil {
		return fmt.Errorf("failed to read join of meeting %s: %w", m.ID, err)
	}
	if len(parts) < len(meeting.JoinParts) {
		return nil
	}
	if err := h.trigger.Reset(ctx, m); err != nil {
		return err
	}
	return h.trigger.Fire(ctx, m)
}

var _ saga.Handler = (*IngestionHandler)(nil)
