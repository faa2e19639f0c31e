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

// JoinHandler feeds the fan-in of external meetings. meeting-ingested records what is
// already stored; later person and company facts record what arrives afterwards. The first
// record that completes a meeting's fan-in requests its goals.
type JoinHandler struct {
	meetings  meeting.Repository
	persons   person.Repository
	companies company.Repository
	joins     meeting.JoinStore
	trigger   *GoalTrigger
	logger    *zap.Logger
}

// NewJoinHandler creates a new handler for meeting, participant and company facts
func NewJoinHandler(
	meetings meeting.Repository,
	persons person.Repository,
	companies company.Repository,
	joins meeting.JoinStore,
	trigger *GoalTrigger,
	logger *zap.Logger,
) *JoinHandler {
	return &JoinHandler{
		meetings:  meetings,
		persons:   persons,
		companies: companies,
		joins:     joins,
		trigger:   trigger,
		logger:    logger,
	}
}

func (h *JoinHandler) Name() string { return "meeting-join" }

func (h *JoinHandler) Subscribes() topic.Set {
	return topic.NewSet(topic.MeetingIngested, topic.NewPersonalData, topic.CompanyEnriched)
}

func (h *JoinHandler) Emits() topic.Set { return topic.NewSet(topic.GenerateMeetingGoals) }

// Handle processes a meeting-ingested, new-personal-data or company-enriched envelope
func (h *JoinHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	var (
		ids  []string
		part meeting.JoinPart
		key  string
		err  error
	)
	switch env.Topic {
	case topic.MeetingIngested:
		return h.recordKnownParts(ctx, env)
	case topic.NewPersonalData:
		key = person.NormalizeEmail(env.Payload.String("email"))
		part = meeting.PartParticipantData
		ids, err = h.joins.MeetingsForParticipant(ctx, key)
	case topic.CompanyEnriched:
		key = company.NormalizeDomain(env.Payload.String("domain"))
		part = meeting.PartCompanyData
		ids, err = h.joins.MeetingsForDomain(ctx, key)
	default:
		return fmt.Errorf("unexpected topic %s: %w", env.Topic, shared.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("failed to find meetings waiting on %s: %w", key, err)
	}

	for _, id := range ids {
		m, err := h.load(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		// Persons are per tenant: another tenant's participant with the same e-mail does not count
		if part == meeting.PartParticipantData && m.TenantID != env.TenantID {
			continue
		}
		if err := h.record(ctx, m, part); err != nil {
			return err
		}
	}
	return nil
}

// recordKnownParts records the parts whose data is already stored. Participants and
// companies enriched for earlier meetings publish no new fact for this one.
func (h *JoinHandler) recordKnownParts(ctx context.Context, env *shared.Envelope) error {
	m, err := h.load(ctx, env.Payload.String("meeting_id"))
	if err != nil || m == nil {
		return err
	}

	var parts []meeting.JoinPart
	for _, p := range m.ExternalParticipants() {
		stored, err := h.persons.GetByEmail(ctx, m.TenantID, p.Email)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load participant %s: %w", p.Email, err)
		}
		if stored.HasData() {
			parts = append(parts, meeting.PartParticipantData)
			break
		}
	}

	known, err := h.companyDataKnown(ctx, m)
	if err != nil {
		return err
	}
	if known {
		parts = append(parts, meeting.PartCompanyData)
	}

	for _, part := range parts {
		if err := h.record(ctx, m, part); err != nil {
			return err
		}
	}
	return nil
}

// companyDataKnown reports whether some external company is already enriched. A meeting
// whose external participants all use consumer mail has no company to wait for.
func (h *JoinHandler) companyDataKnown(ctx context.Context, m *meeting.Meeting) (bool, error) {
	corporate := 0
	for _, d := range m.ExternalDomains() {
		if person.IsFreemail(d) {
			continue
		}
		corporate++
		c, err := h.companies.GetByDomain(ctx, d)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to load company %s: %w", d, err)
		}
		if c.IsEnriched() {
			return true, nil
		}
	}
	return corporate == 0, nil
}

func (h *JoinHandler) record(ctx context.Context, m *meeting.Meeting, part meeting.JoinPart) error {
	id := m.ID.String()
	fired, err := h.joins.Record(ctx, id, part)
	if err != nil {
		return fmt.Errorf("failed to record %s of meeting %s: %w", part, id, err)
	}
	if !fired {
		return nil
	}
	h.logger.Info("meeting fan-in complete",
		zap.String("meeting_id", id),
		zap.String("tenant_id", m.TenantID),
		zap.String("last_part", string(part)),
	)
	return h.trigger.Fire(ctx, m)
}

// load returns nil for meetings deleted since they were watched
func (h *JoinHandler) load(ctx context.Context, id string) (*meeting.Meeting, error) {
	meetingID, err := uuid.Parse(id)
	if err != nil {
		h.logger.Warn("ignoring malformed meeting id", zap.String("meeting_id", id))
		return nil, nil
	}
	m, err := h.meetings.Get(ctx, meetingID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting %s: %w", id, err)
	}
	return m, nil
}

var _ saga.Handler = (*JoinHandler)(nil)
