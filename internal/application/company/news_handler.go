package company

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/application/saga"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// NewsHandler handles refresh-company-news. News fetched within the freshness window is
// reported as up to date without calling the provider.
type NewsHandler struct {
	companies company.Repository
	provider  shared.EnrichmentProvider
	publisher shared.EnvelopePublisher
	tracker   *saga.Tracker
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewNewsHandler creates a new handler for refresh-company-news envelopes. A non-positive
// ttl uses company.NewsStaleAfter.
func NewNewsHandler(
	companies company.Repository,
	provider shared.EnrichmentProvider,
	publisher shared.EnvelopePublisher,
	tracker *saga.Tracker,
	ttl time.Duration,
	logger *zap.Logger,
) *NewsHandler {
	return &NewsHandler{
		companies: companies,
		provider:  provider,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (h *NewsHandler) Name() string { return "company-news" }

func (h *NewsHandler) Subscribes() topic.Set { return topic.NewSet(topic.RefreshCompanyNews) }

func (h *NewsHandler) Emits() topic.Set {
	return topic.NewSet(topic.CompanyNewsUpdated, topic.CompanyNewsUpToDate, topic.CompanyNewsFailed)
}

// Handle processes a refresh-company-news envelope
func (h *NewsHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	domain := company.NormalizeDomain(env.Payload.String("domain"))
	step := h.tracker.Begin(ctx, env)
	step.Processing(ctx)

	c, err := h.companies.GetByDomain(ctx, domain)
	if err != nil {
		err = fmt.Errorf("failed to load company %s: %w", domain, err)
		step.Fail(ctx, err)
		return h.publish(ctx, topic.CompanyNewsFailed, shared.Payload{"domain": domain, "error": err.Error()})
	}

	if err := h.checkStale(c); errors.Is(err, shared.ErrStalenessSkip) {
		step.Complete(ctx)
		h.logger.Debug("company news still fresh",
			zap.String("domain", domain),
			zap.Timep("fetched_at", c.NewsFetchedAt),
		)
		return h.publish(ctx, topic.CompanyNewsUpToDate, shared.Payload{"domain": domain})
	}

	var items []company.NewsItem
	at := h.now()
	res, err := h.provider.Fetch(ctx, domain)
	switch {
	case err == nil:
		items = company.NewsFromPayload(res.Data)
		if !res.FetchedAt.IsZero() {
			at = res.FetchedAt
		}
	case shared.IsNotFound(err):
		// Nothing published about the company is a valid, empty result
	default:
		h.logger.Warn("company news fetch failed",
			zap.String("domain", domain),
			zap.String("provider", h.provider.Name()),
			zap.Error(err),
		)
		step.Fail(ctx, err)
		return h.publish(ctx, topic.CompanyNewsFailed, shared.Payload{"domain": domain, "error": err.Error()})
	}

	c.UpdateNews(items, at)
	if err := h.companies.Upsert(ctx, c); err != nil {
		step.Fail(ctx, err)
		return fmt.Errorf("failed to save company %s: %w", domain, err)
	}
	step.Complete(ctx)

	h.logger.Info("company news refreshed",
		zap.String("domain", domain),
		zap.Int("articles", len(items)),
	)
	return h.publish(ctx, topic.CompanyNewsUpdated, shared.Payload{"domain": domain, "articles": len(items)})
}

func (h *NewsHandler) checkStale(c *company.Company) error {
	if !c.NewsOlderThan(h.now(), h.ttl) {
		return shared.ErrStalenessSkip
	}
	return nil
}

func (h *NewsHandler) publish(ctx context.Context, t topic.Topic, payload shared.Payload) error {
	if err := h.publisher.Publish(ctx, t, payload, shared.Global()); err != nil {
		return fmt.Errorf("failed to publish %s: %w", t, err)
	}
	return nil
}

var _ saga.Handler = (*NewsHandler)(nil)
