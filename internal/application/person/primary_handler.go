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

// PrimaryEnrichmentHandler handles enrich-person-primary by asking the primary provider.
// A provider failure is not an error of the handler: it is re-expressed as
// person-primary-failed so the fallback branch can take over.
type PrimaryEnrichmentHandler struct {
	persons   person.Repository
	provider  shared.EnrichmentProvider
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
	now       func() time.Time
}

// NewPrimaryEnrichmentHandler creates a new handler for enrich-person-primary envelopes
func NewPrimaryEnrichmentHandler(
	persons person.Repository,
	provider shared.EnrichmentProvider,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *PrimaryEnrichmentHandler {
	return &PrimaryEnrichmentHandler{
		persons:   persons,
		provider:  provider,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *PrimaryEnrichmentHandler) Name() string { return "person-primary-enrichment" }

func (h *PrimaryEnrichmentHandler) Subscribes() topic.Set {
	return topic.NewSet(topic.EnrichPersonPrimary)
}

func (h *PrimaryEnrichmentHandler) Emits() topic.Set {
	return topic.NewSet(topic.NewPersonalData, topic.PersonPrimaryFailed)
}

// Handle processes an enrich-person-primary envelope
func (h *PrimaryEnrichmentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	if step.Completed() {
		h.logger.Debug("primary enrichment already completed, skipping",
			zap.String("email", step.ObjectID),
			zap.String("tenant_id", env.TenantID),
		)
		return nil
	}
	step.Processing(ctx)

	p, err := loadPerson(ctx, h.persons, env)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	res, err := h.provider.Fetch(ctx, p.Email)
	if err != nil {
		return h.fail(ctx, step, p, err)
	}

	at := res.FetchedAt
	if at.IsZero() {
		at = h.now()
	}
	rec := person.Fetched(person.SourcePrimary, res.Provider, res.Data, at)
	// Only a strictly newer fetch replaces a fetched record
	if p.Primary.Status != person.StatusFetched || rec.NewerThan(p.Primary) {
		p.SetRecord(rec)
	}

	decision := person.Arbitrate(p.Primary, p.Secondary)
	if decision.BothFailed() {
		return h.fail(ctx, step, p, errNoProviderData)
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

	h.logger.Info("person enriched from primary provider",
		zap.String("email", p.Email),
		zap.String("tenant_id", p.TenantID),
		zap.String("provider", res.Provider),
		zap.String("winner", string(decision.Winner)),
		zap.Strings("changed_fields", changed),
	)
	return nil
}

func (h *PrimaryEnrichmentHandler) fail(ctx context.Context, step *saga.Step, p *person.Person, cause error) error {
	if shared.IsNotFound(cause) {
		h.logger.Info("primary provider has no data for person",
			zap.String("email", p.Email),
			zap.String("provider", h.provider.Name()),
		)
	} else {
		h.logger.Warn("primary enrichment failed",
			zap.String("email", p.Email),
			zap.String("provider", h.provider.Name()),
			zap.Error(cause),
		)
	}

	p.SetRecord(person.Failed(p.Primary, h.provider.Name(), h.now()))
	if err := h.persons.Upsert(ctx, p); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save person %s: %w", p.Email, err)
	}
	step.Fail(ctx, cause)

	if err := h.publisher.Publish(ctx, topic.PersonPrimaryFailed, failurePayload(p.Email, cause)); err != nil {
		return fmt.Errorf("failed to publish primary failure: %w", err)
	}
	return nil
}

var _ saga.Handler = (*PrimaryEnrichmentHandler)(nil)
