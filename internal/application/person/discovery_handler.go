// Package person implements the person enrichment saga: discovery, primary and secondary
// provider enrichment, freshness arbitration and profile building.
package person

import (
	"context"
	"fmt"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// DiscoveryHandler handles new-person: it stores the person under its natural key, requests
// primary enrichment and announces the company behind a corporate e-mail domain
type DiscoveryHandler struct {
	persons   person.Repository
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewDiscoveryHandler creates a new handler for new-person envelopes
func NewDiscoveryHandler(
	persons person.Repository,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *DiscoveryHandler {
	return &DiscoveryHandler{
		persons:   persons,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *DiscoveryHandler) Name() string { return "person-discovery" }

func (h *DiscoveryHandler) Subscribes() topic.Set { return topic.NewSet(topic.NewPerson) }

func (h *DiscoveryHandler) Emits() topic.Set {
	return topic.NewSet(topic.EnrichPersonPrimary, topic.NewCompany)
}

// Handle processes a new-person envelope
func (h *DiscoveryHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	p, err := person.New(env.TenantID, env.Payload.String("email"))
	if err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("new-person without a usable e-mail %q: %w", env.Payload.String("email"), err)
	}

	stored, created, err := h.persons.CreateIfAbsent(ctx, p)
	if err != nil {
		step.Fail(ctx, err)
		h.logger.Error("failed to store person",
			zap.String("email", p.Email),
			zap.String("tenant_id", env.TenantID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to store person: %w", err)
	}

	if err := h.publisher.Publish(ctx, topic.EnrichPersonPrimary, shared.Payload{"email": stored.Email}); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to request primary enrichment: %w", err)
	}

	// Consumer mail domains identify no company
	if !person.IsFreemail(stored.CompanyDomain) {
		if err := h.publisher.Publish(ctx, topic.NewCompany,
			shared.Payload{"domain": stored.CompanyDomain},
			shared.Global(),
		); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to announce company %s: %w", stored.CompanyDomain, err)
		}
	}

	step.Complete(ctx)
	h.logger.Info("person discovered",
		zap.String("email", stored.Email),
		zap.String("tenant_id", stored.TenantID),
		zap.String("company_domain", stored.CompanyDomain),
		zap.Bool("created", created),
	)
	return nil
}

var _ saga.Handler = (*DiscoveryHandler)(nil)
