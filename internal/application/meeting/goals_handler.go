package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// GoalsHandler handles generate-meeting-goals with everything known about the external
// participants and their companies
type GoalsHandler struct {
	meetings  meeting.Repository
	persons   person.Repository
	companies company.Repository
	generator shared.GoalGenerator
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewGoalsHandler creates a new handler for generate-meeting-goals envelopes
func NewGoalsHandler(
	meetings meeting.Repository,
	persons person.Repository,
	companies company.Repository,
	generator shared.GoalGenerator,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *GoalsHandler {
	return &GoalsHandler{
		meetings:  meetings,
		persons:   persons,
		companies: companies,
		generator: generator,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *GoalsHandler) Name() string { return "meeting-goals" }

func (h *GoalsHandler) Subscribes() topic.Set { return topic.NewSet(topic.GenerateMeetingGoals) }

func (h *GoalsHandler) Emits() topic.Set {
	return topic.NewSet(topic.MeetingGoalsGenerated, topic.MeetingGoalsFailed)
}

// Handle processes a generate-meeting-goals envelope
func (h *GoalsHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	if step.Completed() {
		h.logger.Debug("meeting goals already generated, skipping", zap.String("meeting_id", step.ObjectID))
		return nil
	}
	step.Processing(ctx)

	id, err := uuid.Parse(env.Payload.String("meeting_id"))
	if err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("generate-meeting-goals with invalid meeting id: %w", shared.ErrInvalidInput)
	}
	m, err := h.meetings.Get(ctx, id)
	if err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to load meeting %s: %w", id, err)
	}

	participants, companies, err := h.collect(ctx, m)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	goals, err := h.generator.GenerateGoals(ctx, m.Summary(), participants, companies)
	if err != nil {
		h.logger.Warn("goal generation failed",
			zap.String("meeting_id", id.String()),
			zap.Error(err),
		)
		m.MarkGoals(meeting.GoalsFailed, nil)
		if saveErr := h.meetings.Upsert(ctx, m); saveErr != nil {
			step.Fail(ctx, saveErr)
			return fmt.Errorf("failed to save meeting %s: %w", id, saveErr)
		}
		step.Fail(ctx, err)
		if err := h.publisher.Publish(ctx, topic.MeetingGoalsFailed,
			shared.Payload{"meeting_id": id.String(), "error": err.Error()},
		); err != nil {
			return fmt.Errorf("failed to publish goal failure: %w", err)
		}
		return nil
	}

	m.MarkGoals(meeting.GoalsGenerated, goals)
	if err := h.meetings.Upsert(ctx, m); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save meeting %s: %w", id, err)
	}
	if err := h.publisher.Publish(ctx, topic.MeetingGoalsGenerated, shared.Payload{"meeting_id": id.String()}); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to publish generated goals: %w", err)
	}
	step.Complete(ctx)

	h.logger.Info("meeting goals generated",
		zap.String("meeting_id", id.String()),
		zap.String("tenant_id", m.TenantID),
		zap.Int("participants", len(participants)),
		zap.Int("companies", len(companies)),
	)
	return nil
}

// collect builds the participant and company documents. Participants the saga knows
// nothing about yet still appear with their calendar identity.
func (h *GoalsHandler) collect(ctx context.Context, m *meeting.Meeting) ([]shared.Payload, []shared.Payload, error) {
	var participants []shared.Payload
	for _, p := range m.ExternalParticipants() {
		stored, err := h.persons.GetByEmail(ctx, m.TenantID, p.Email)
		switch {
		case err == nil:
			doc := stored.Summary()
			if p.Name != "" {
				doc["name"] = p.Name
			}
			participants = append(participants, doc)
		case errors.Is(err, shared.ErrNotFound):
			participants = append(participants, shared.Payload{"email": p.Email, "name": p.Name})
		default:
			return nil, nil, fmt.Errorf("failed to load participant %s: %w", p.Email, err)
		}
	}

	var companies []shared.Payload
	for _, d := range m.ExternalDomains() {
		c, err := h.companies.GetByDomain(ctx, d)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load company %s: %w", d, err)
		}
		if c.IsEnriched() {
			companies = append(companies, c.Summary())
		}
	}
	return participants, companies, nil
}

var _ saga.Handler = (*GoalsHandler)(nil)
