// Package company implements the company saga: domain enrichment across the configured
// providers and the news refresh behind a staleness gate.
package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

var errNoCompanyProvider = errors.New("no company provider configured")

// EnrichmentHandler handles new-company. Providers are tried in priority order and the first
// one that knows the domain wins. A company is enriched once for every tenant.
type EnrichmentHandler struct {
	companies company.Repository
	providers []shared.EnrichmentProvider
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
}

// NewEnrichmentHandler creates a new handler for new-company envelopes
func NewEnrichmentHandler(
	companies company.Repository,
	providers []shared.EnrichmentProvider,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	logger *zap.Logger,
) *EnrichmentHandler {
	return &EnrichmentHandler{
		companies: companies,
		providers: providers,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *EnrichmentHandler) Name() string { return "company-enrichment" }

func (h *EnrichmentHandler) Subscribes() topic.Set { return topic.NewSet(topic.NewCompany) }

func (h *EnrichmentHandler) Emits() topic.Set {
	return topic.NewSet(topic.CompanyEnriched, topic.CompanyEnrichmentFailed, topic.RefreshCompanyNews)
}

// Handle processes a new-company envelope
func (h *EnrichmentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	domain := company.NormalizeDomain(env.Payload.String("domain"))
	step := h.tracker.Begin(ctx, env)
	if step.Completed() {
		h.logger.Debug("company already enriched, skipping", zap.String("domain", domain))
		return nil
	}
	step.Processing(ctx)

	c, err := h.load(ctx, domain)
	if err != nil {
		step.Fail(ctx, err)
		return err
	}

	// The status record was reset but the data survived: announce it again without
	// spending provider calls
	if c.IsEnriched() {
		if err := h.announce(ctx, c); err != nil {
			step.Fail(ctx, err)
			return err
		}
		step.Complete(ctx)
		return nil
	}

	var errs []error
	for _, p := range h.providers {
		res, err := p.Fetch(ctx, domain)
		if err != nil {
			if shared.IsNotFound(err) {
				h.logger.Debug("company provider has no data",
					zap.String("domain", domain),
					zap.String("provider", p.Name()),
				)
			} else {
				h.logger.Warn("company provider failed",
					zap.String("domain", domain),
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
			}
			errs = append(errs, err)
			continue
		}

		c.Enrich(res)
		if err := h.companies.Upsert(ctx, c); err != nil {
			step.Fail(ctx, err)
			return fmt.Errorf("failed to save company %s: %w", domain, err)
		}
		if err := h.announce(ctx, c); err != nil {
			step.Fail(ctx, err)
			return err
		}
		step.Complete(ctx)

		h.logger.Info("company enriched",
			zap.String("domain", domain),
			zap.String("provider", res.Provider),
			zap.String("name", c.Name),
		)
		return nil
	}

	cause := errors.Join(errs...)
	if cause == nil {
		cause = errNoCompanyProvider
	}
	c.MarkFailed()
	if err := h.companies.Upsert(ctx, c); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save company %s: %w", domain, err)
	}
	step.Fail(ctx, cause)
	if err := h.publisher.Publish(ctx, topic.CompanyEnrichmentFailed,
		shared.Payload{"domain": domain, "error": cause.Error()},
		shared.Global(),
	); err != nil {
		return fmt.Errorf("failed to publish company failure: %w", err)
	}

	h.logger.Warn("company enrichment failed on every provider",
		zap.String("domain", domain),
		zap.Int("providers", len(h.providers)),
	)
	return nil
}

func (h *EnrichmentHandler) load(ctx context.Context, domain string) (*company.Company, error) {
	exists, err := h.companies.ExistsByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to check company %s: %w", domain, err)
	}
	if exists {
		c, err := h.companies.GetByDomain(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("failed to load company %s: %w", domain, err)
		}
		return c, nil
	}
	c, err := company.New(domain)
	if err != nil {
		return nil, fmt.Errorf("new-company with invalid domain %q: %w", domain, err)
	}
	return c, nil
}

// announce publishes company-enriched and asks for fresh news
func (h *EnrichmentHandler) announce(ctx context.Context, c *company.Company) error {
	if err := h.publisher.Publish(ctx, topic.CompanyEnriched,
		shared.Payload{"domain": c.Domain, "provider": c.Provider},
		shared.Global(),
	); err != nil {
		return fmt.Errorf("failed to publish enriched company: %w", err)
	}
	if err := h.publisher.Publish(ctx, topic.RefreshCompanyNews,
		shared.Payload{"domain": c.Domain},
		shared.Global(),
	); err != nil {
		return fmt.Errorf("failed to request news refresh: %w", err)
	}
	return nil
}

var _ saga.Handler = (*EnrichmentHandler)(nil)
