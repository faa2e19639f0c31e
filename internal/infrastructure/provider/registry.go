package provider

import (
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Set holds every external collaborator of the sagas
type Set struct {
	PersonPrimary   shared.EnrichmentProvider
	PersonSecondary shared.EnrichmentProvider
	// Company is ordered by priority
	Company     []shared.EnrichmentProvider
	CompanyNews shared.EnrichmentProvider
	Profile     shared.ProfileBuilder
	Goals       shared.GoalGenerator
}

// NewSet builds the adapters from configuration. Providers without a base URL are replaced
// by Disabled stand-ins.
func NewSet(cfg config.ProvidersConfig, logger *zap.Logger, opts ...Option) *Set {
	s := &Set{
		PersonPrimary:   enrichment(cfg.PersonPrimary, "person-primary", logger, opts),
		PersonSecondary: enrichment(cfg.PersonSecondary, "person-secondary", logger, opts),
		CompanyNews:     enrichment(cfg.CompanyNews, "company-news", logger, opts),
	}
	for _, c := range cfg.Company {
		s.Company = append(s.Company, enrichment(c, "company", logger, opts))
	}

	if cfg.Profile.Enabled() {
		s.Profile = NewHTTPProfileBuilder(NewClient(named(cfg.Profile, "profile"), logger, opts...))
	} else {
		s.Profile = NewDisabled(nameOr(cfg.Profile, "profile"))
	}
	if cfg.Goals.Enabled() {
		s.Goals = NewHTTPGoalGenerator(NewClient(named(cfg.Goals, "goals"), logger, opts...))
	} else {
		s.Goals = NewDisabled(nameOr(cfg.Goals, "goals"))
	}

	logger.Info("enrichment providers configured",
		zap.String("person_primary", s.PersonPrimary.Name()),
		zap.String("person_secondary", s.PersonSecondary.Name()),
		zap.Int("company", len(s.Company)),
		zap.Bool("profile", cfg.Profile.Enabled()),
		zap.Bool("goals", cfg.Goals.Enabled()),
	)
	return s
}

func enrichment(cfg config.ProviderConfig, fallback string, logger *zap.Logger, opts []Option) shared.EnrichmentProvider {
	if !cfg.Enabled() {
		return NewDisabled(nameOr(cfg, fallback))
	}
	return NewHTTPEnrichmentProvider(NewClient(named(cfg, fallback), logger, opts...))
}

func named(cfg config.ProviderConfig, fallback string) config.ProviderConfig {
	cfg.Name = nameOr(cfg, fallback)
	return cfg
}

func nameOr(cfg config.ProviderConfig, fallback string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return fallback
}
