package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// ProfileRequestHandler turns new-personal-data into a profile build request. Data that
// changed nothing on an already built profile requests no rebuild.
type ProfileRequestHandler struct {
	persons   person.Repository
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewProfileRequestHandler creates a new handler for new-personal-data envelopes
func NewProfileRequestHandler(
	persons person.Repository,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *ProfileRequestHandler {
	return &ProfileRequestHandler{persons: persons, publisher: publisher, tracker: tracker, logger: logger}
}

func (h *ProfileRequestHandler) Name() string { return "person-profile-request" }

func (h *ProfileRequestHandler) Subscribes() topic.Set { return topic.NewSet(topic.NewPersonalData) }

func (h *ProfileRequestHandler) Emits() topic.Set { return topic.NewSet(topic.BuildPersonProfile) }

// Handle processes a new-personal-data envelope
func (h *ProfileRequestHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	if p.ProfileState == person.ProfileBuilt && changedFieldCount(env.Payload) == 0 {
		step.Complete(ctx)
		h.logger.Debug("personal data unchanged, profile kept",
			zap.String("email", p.Email),
			zap.String("tenant_id", p.TenantID),
		)
		return nil
	}

	if err := h.publisher.Publish(ctx, topic.BuildPersonProfile, shared.Payload{"email": p.Email}); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to request profile build: %w", err)
	}
	step.Complete(ctx)
	return nil
}

// ProfileBuildHandler handles build-person-profile. A person whose company is still being
// enriched is parked as waiting and woken by ProfileWakeupHandler.
type ProfileBuildHandler struct {
	persons   person.Repository
	companies company.Repository
	builder   shared.ProfileBuilder
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewProfileBuildHandler creates a new handler for build-person-profile envelopes
func NewProfileBuildHandler(
	persons person.Repository,
	companies company.Repository,
	builder shared.ProfileBuilder,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *ProfileBuildHandler {
	return &ProfileBuildHandler{
		persons:   persons,
		companies: companies,
		builder:   builder,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *ProfileBuildHandler) Name() string { return "person-profile-build" }

func (h *ProfileBuildHandler) Subscribes() topic.Set { return topic.NewSet(topic.BuildPersonProfile) }

func (h *ProfileBuildHandler) Emits() topic.Set {
	return topic.NewSet(topic.PersonProfileBuilt, topic.PersonProfileFailed)
}

// Handle processes a build-person-profile envelope
func (h *ProfileBuildHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	companyData, ready, err := h.companyFor(ctx, p)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}
	if !ready {
		if p.ProfileState != person.ProfileWaiting {
			p.MarkProfile(person.ProfileWaiting, nil)
			if err := h.persons.Upsert(ctx, p); err != nil {
				step.Fail(ctx, err)
				return fmt.Errorf("failed to save person %s: %w", p.Email, err)
			}
		}
		// The company may have settled between the first look and the save above, in
		// which case its wakeup found nobody waiting
		companyData, ready, err = h.companyFor(ctx, p)
		if err != nil {
			step.Fail(ctx, err)
			return err
		}
		if !ready {
			h.logger.Info("profile build waits for company enrichment",
				zap.String("email", p.Email),
				zap.String("company_domain", p.CompanyDomain),
			)
			return nil
		}
	}

	profile, err := h.builder.BuildProfile(ctx, p.Summary(), companyData)
	if err != nil {
		h.logger.Warn("profile build failed",
			zap.String("email", p.Email),
			zap.Error(err),
		)
		p.MarkProfile(person.ProfileFailed, nil)
		if saveErr := h.persons.Upsert(ctx, p); saveErr != nil {
			step.Fail(ctx, saveErr)
			return fmt.Errorf("failed to save person %s: %w", p.Email, saveErr)
		}
		step.Fail(ctx, err)
		if err := h.publisher.Publish(ctx, topic.PersonProfileFailed, failurePayload(p.Email, err)); err != nil {
			return fmt.Errorf("failed to publish profile failure: %w", err)
		}
		return nil
	}

	p.MarkProfile(person.ProfileBuilt, profile)
	if err := h.persons.Upsert(ctx, p); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save person %s: %w", p.Email, err)
	}
	if err := h.publisher.Publish(ctx, topic.PersonProfileBuilt, shared.Payload{"email": p.Email}); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to publish built profile: %w", err)
	}
	step.Complete(ctx)

	h.logger.Info("person profile built",
		zap.String("email", p.Email),
		zap.String("tenant_id", p.TenantID),
		zap.Bool("with_company", companyData != nil),
	)
	return nil
}

// companyFor returns the company document to build with. ready is false while the company
// is still being enriched; freemail and failed companies build without company data.
func (h *ProfileBuildHandler) companyFor(ctx context.Context, p *person.Person) (shared.Payload, bool, error) {
	if person.IsFreemail(p.CompanyDomain) {
		return nil, true, nil
	}
	c, err := h.companies.GetByDomain(ctx, p.CompanyDomain)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load company %s: %w", p.CompanyDomain, err)
	}
	switch {
	case c.IsEnriched():
		return c.Summary(), true, nil
	case c.Status == company.EnrichmentFailed:
		return nil, true, nil
	}
	return nil, false, nil
}

// ProfileWakeupHandler re-requests the profile build of every person parked on a company
// once that company settles, whether it was enriched or not
type ProfileWakeupHandler struct {
	persons   person.Repository
	publisher shared.EnvelopePublisher
	logger    *zap.Logger
}

// NewProfileWakeupHandler creates a new handler for company enrichment outcomes
func NewProfileWakeupHandler(
	persons person.Repository,
	publisher shared.EnvelopePublisher,
	logger *zap.Logger,
) *ProfileWakeupHandler {
	return &ProfileWakeupHandler{persons: persons, publisher: publisher, logger: logger}
}

func (h *ProfileWakeupHandler) Name() string { return "person-profile-wakeup" }

func (h *ProfileWakeupHandler) Subscribes() topic.Set {
	return topic.NewSet(topic.CompanyEnriched, topic.CompanyEnrichmentFailed)
}

func (h *ProfileWakeupHandler) Emits() topic.Set { return topic.NewSet(topic.BuildPersonProfile) }

// Handle processes a company enrichment outcome
func (h *ProfileWakeupHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	domain := company.NormalizeDomain(env.Payload.String("domain"))
	if domain == "" {
		return fmt.Errorf("%s without domain: %w", env.Topic, shared.ErrInvalidInput)
	}

	waiting, err := h.persons.ListWaitingForCompany(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to list persons waiting for %s: %w", domain, err)
	}
	for _, p := range waiting {
		// Company envelopes are global, the rebuild belongs to the person's tenant
		if err := h.publisher.Publish(ctx, topic.BuildPersonProfile,
			shared.Payload{"email": p.Email},
			shared.WithTenant(p.TenantID),
		); err != nil {
			return fmt.Errorf("failed to wake profile build of %s: %w", p.Email, err)
		}
	}

	if len(waiting) > 0 {
		h.logger.Info("woke profile builds waiting for company",
			zap.String("domain", domain),
			zap.String("trigger", env.Topic.String()),
			zap.Int("persons", len(waiting)),
		)
	}
	return nil
}

var (
	_ saga.Handler = (*ProfileRequestHandler)(nil)
	_ saga.Handler = (*ProfileBuildHandler)(nil)
	_ saga.Handler = (*ProfileWakeupHandler)(nil)
)
