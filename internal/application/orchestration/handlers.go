// Package orchestration assembles the saga handlers of every enrichment flow into one set
// that the bus workers and the graph tooling share.
package orchestration

import (
	"time"

	"github.com/meetprep/backend/internal/application/company"
	"github.com/meetprep/backend/internal/application/meeting"
	"github.com/meetprep/backend/internal/application/notification"
	"github.com/meetprep/backend/internal/application/person"
	"github.com/meetprep/backend/internal/application/saga"
	companydomain "github.com/meetprep/backend/internal/domain/company"
	meetingdomain "github.com/meetprep/backend/internal/domain/meeting"
	persondomain "github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"go.uber.org/zap"
)

// Providers holds the external collaborators of the sagas
type Providers struct {
	PersonPrimary   shared.EnrichmentProvider
	PersonSecondary shared.EnrichmentProvider
	// Company is tried in order until one returns data
	Company     []shared.EnrichmentProvider
	CompanyNews shared.EnrichmentProvider
	Profile     shared.ProfileBuilder
	Goals       shared.GoalGenerator
}

// Dependencies is everything the handlers need
type Dependencies struct {
	Persons   persondomain.Repository
	Companies companydomain.Repository
	Meetings  meetingdomain.Repository
	Joins     meetingdomain.JoinStore
	Ledger    shared.StatusLedger
	Publisher shared.BatchPublisher
	Notifier  shared.Notifier
	Providers Providers

	PersonSecondaryTTL time.Duration
	CompanyNewsTTL     time.Duration

	Logger *zap.Logger
}

// Handlers builds one handler per saga step. Each handler runs in its own consumer group.
func Handlers(d Dependencies) []saga.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := saga.NewTracker(d.Ledger, logger.Named("saga"))
	trigger := meeting.NewGoalTrigger(d.Meetings, d.Ledger, d.Publisher, logger.Named("goal-trigger"))
	p := d.Providers

	return []saga.Handler{
		// person
		person.NewDiscoveryHandler(d.Persons, d.Publisher, tracker, logger.Named("person-discovery")),
		person.NewPrimaryEnrichmentHandler(d.Persons, p.PersonPrimary, d.Publisher, tracker, logger.Named("person-primary")),
		person.NewFallbackHandler(d.Persons, d.Publisher, tracker, logger.Named("person-fallback")),
		person.NewSecondaryEnrichmentHandler(d.Persons, p.PersonSecondary, d.Publisher, tracker, d.PersonSecondaryTTL, logger.Named("person-secondary")),
		person.NewArbitrationHandler(d.Persons, d.Publisher, tracker, logger.Named("person-arbitration")),
		person.NewProfileRequestHandler(d.Persons, d.Publisher, tracker, logger.Named("person-profile")),
		person.NewProfileBuildHandler(d.Persons, d.Companies, p.Profile, d.Publisher, tracker, logger.Named("person-profile")),
		person.NewProfileWakeupHandler(d.Persons, d.Publisher, logger.Named("person-profile")),

		// company
		company.NewEnrichmentHandler(d.Companies, p.Company, d.Publisher, tracker, logger.Named("company-enrichment")),
		company.NewNewsHandler(d.Companies, p.CompanyNews, d.Publisher, tracker, d.CompanyNewsTTL, logger.Named("company-news")),

		// meeting
		meeting.NewIngestionHandler(d.Meetings, d.Joins, trigger, d.Publisher, tracker, logger.Named("meeting-ingestion")),
		meeting.NewJoinHandler(d.Meetings, d.Persons, d.Companies, d.Joins, trigger, logger.Named("meeting-join")),
		meeting.NewGoalsHandler(d.Meetings, d.Persons, d.Companies, p.Goals, d.Publisher, tracker, logger.Named("meeting-goals")),

		notification.NewFailureHandler(d.Notifier, tracker, logger.Named("notification")),
	}
}

// Graph returns the saga graph declared by handlers
func Graph(handlers []saga.Handler) *topic.Graph {
	g := topic.NewGraph()
	for _, h := range handlers {
		g.Add(h)
	}
	return g
}

// Triggers returns the topics that may be published from outside the bus: discoveries and
// requests some handler consumes. Facts and outcomes are only emitted by handlers.
func Triggers(handlers []saga.Handler) []topic.Topic {
	g := Graph(handlers)
	var out []topic.Topic
	for _, t := range topic.All() {
		if len(g.Subscribers(t)) == 0 {
			continue
		}
		switch t.Kind() {
		case topic.KindDiscovery, topic.KindRequest:
			out = append(out, t)
		}
	}
	return out
}
