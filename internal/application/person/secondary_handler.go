package person

import (
	"context"
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// DefaultSecondaryTTL is how long a fetched secondary record is reused without asking the
// secondary provider again
const DefaultSecondaryTTL = 7 * 24 * time.Hour

// FallbackHandler handles person-primary-failed. A secondary record fetched after the last
// successful primary fetch is used directly; otherwise the secondary provider is asked.
type FallbackHandler struct {
	persons   person.Repository
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewFallbackHandler creates a new handler for person-primary-failed envelopes
func NewFallbackHandler(
	persons person.Repository,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *FallbackHandler {
	return &FallbackHandler{persons: persons, publisher: publisher, tracker: tracker, logger: logger}
}

func (h *FallbackHandler) Name() string { return "person-primary-fallback" }

func (h *FallbackHandler) Subscribes() topic.Set { return topic.NewSet(topic.PersonPrimaryFailed) }

func (h *FallbackHandler) Emits() topic.Set {
	return topic.NewSet(topic.NewPersonalData, topic.EnrichPersonSecondary)
}

// Handle processes a person-primary-failed envelope
func (h *FallbackHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	if person.SecondaryPreferred(p.Primary, p.Secondary) {
		changed := p.ApplyWinner(p.Secondary)
		if err := h.persons.Upsert(ctx, p); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to save person %s: %w", p.Email, err)
		}
		if err := h.publisher.Publish(ctx, topic.NewPersonalData, personalData(p.Email, person.SourceSecondary, changed)); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to publish personal data: %w", err)
		}
		step.Complete(ctx)
		h.logger.Info("using stored secondary record after primary failure",
			zap.String("email", p.Email),
			zap.Time("secondary_updated_at", p.Secondary.UpdatedAt),
			zap.Time("primary_updated_at", p.Primary.UpdatedAt),
		)
		return nil
	}

	if err := h.publisher.Publish(ctx, topic.EnrichPersonSecondary, shared.Payload{"email": p.Email}); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to request secondary enrichment: %w", err)
	}
	step.Complete(ctx)
	return nil
}

// SecondaryEnrichmentHandler handles enrich-person-secondary. A record fetched within the
// freshness window short-circuits to person-secondary-up-to-date.
type SecondaryEnrichmentHandler struct {
	persons   person.Repository
	provider  shared.EnrichmentProvider
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewSecondaryEnrichmentHandler creates a new handler for enrich-person-secondary envelopes.
// A non-positive ttl uses DefaultSecondaryTTL.
func NewSecondaryEnrichmentHandler(
	persons person.Repository,
	provider shared.EnrichmentProvider,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	ttl time.Duration,
	logger *zap.Logger,
) *SecondaryEnrichmentHandler {
	if ttl <= 0 {
		ttl = DefaultSecondaryTTL
	}
	return &SecondaryEnrichmentHandler{
		persons:   persons,
		provider:  provider,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (h *SecondaryEnrichmentHandler) Name() string { return "person-secondary-enrichment" }

func (h *SecondaryEnrichmentHandler) Subscribes() topic.Set {
	return topic.NewSet(topic.EnrichPersonSecondary)
}

func (h *SecondaryEnrichmentHandler) Emits() topic.Set {
	return topic.NewSet(topic.PersonSecondaryFetched, topic.PersonSecondaryFailed, topic.PersonSecondaryUpToDate)
}

// Handle processes an enrich-person-secondary envelope
func (h *SecondaryEnrichmentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	if p.Secondary.IsFreshWithin(h.ttl, h.now()) {
		if err := h.publisher.Publish(ctx, topic.PersonSecondaryUpToDate, shared.Payload{"email": p.Email}); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to publish secondary freshness: %w", err)
		}
		step.Complete(ctx)
		h.logger.Debug("secondary record still fresh",
			zap.String("email", p.Email),
			zap.Time("updated_at", p.Secondary.UpdatedAt),
		)
		return nil
	}

	res, fetchErr := h.provider.Fetch(ctx, p.Email)
	next := topic.PersonSecondaryFetched
	payload := shared.Payload{"email": p.Email}
	if fetchErr != nil {
		h.logger.Warn("secondary enrichment failed",
			zap.String("email", p.Email),
			zap.String("provider", h.provider.Name()),
			zap.Error(fetchErr),
		)
		p.SetRecord(person.Failed(p.Secondary, h.provider.Name(), h.now()))
		next = topic.PersonSecondaryFailed
		payload = failurePayload(p.Email, fetchErr)
	} else {
		at := res.FetchedAt
		if at.IsZero() {
			at = h.now()
		}
		rec := person.Fetched(person.SourceSecondary, res.Provider, res.Data, at)
		if p.Secondary.Status != person.StatusFetched || rec.NewerThan(p.Secondary) {
			p.SetRecord(rec)
		}
	}

	if err := h.persons.Upsert(ctx, p); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save person %s: %w", p.Email, err)
	}
	if err := h.publisher.Publish(ctx, next, payload); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to publish %s: %w", next, err)
	}
	if fetchErr != nil {
		step.Fail(ctx, fetchErr)
	} else {
		step.Complete(ctx)
	}
	return nil
}

// ArbitrationHandler closes the secondary branch: it arbitrates between the stored
// provider records and either publishes the merged data or the terminal failure
type ArbitrationHandler struct {
	persons   person.Repository
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewArbitrationHandler creates a new handler for the outcomes of secondary enrichment
func NewArbitrationHandler(
	persons person.Repository,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *ArbitrationHandler {
	return &ArbitrationHandler{persons: persons, publisher: publisher, tracker: tracker, logger: logger}
}

func (h *ArbitrationHandler) Name() string { return "person-arbitration" }

func (h *ArbitrationHandler) Subscribes() topic.Set {
	return topic.NewSet(topic.PersonSecondaryFetched, topic.PersonSecondaryFailed, topic.PersonSecondaryUpToDate)
}

func (h *ArbitrationHandler) Emits() topic.Set {
	return topic.NewSet(topic.NewPersonalData, topic.PersonEnrichmentFailed)
}

// Handle processes the outcome of a secondary enrichment
func (h *ArbitrationHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	decision := person.Arbitrate(p.Primary, p.Secondary)
	if decision.BothFailed() {
		if err := h.publisher.Publish(ctx, topic.PersonEnrichmentFailed, failurePayload(p.Email, errNoProviderData)); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to publish enrichment failure: %w", err)
		}
		step.Fail(ctx, errNoProviderData)
		h.logger.Warn("person enrichment failed on every provider",
			zap.String("email", p.Email),
			zap.String("tenant_id", p.TenantID),
		)
		return nil
	}

	changed := p.ApplyWinner(decision.Record)
	if err := h.persons.Upsert(ctx, p); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save person %s: %w", p.Email, err)
	}
	if err := h.publisher.Publish(ctx, topic.NewPersonalData, personalData(p.Email, decision.Winner, changed)); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to publish personal data: %w", err)
	}
	step.Complete(ctx)

	h.logger.Info("person arbitration decided",
		zap.String("email", p.Email),
		zap.String("trigger", env.Topic.String()),
		zap.String("winner", string(decision.Winner)),
		zap.Strings("changed_fields", changed),
	)
	return nil
}

var (
	_ saga.Handler = (*FallbackHandler)(nil)
	_ saga.Handler = (*SecondaryEnrichmentHandler)(nil)
	_ saga.Handler = (*ArbitrationHandler)(nil)
)
