package shared

import (
	"context"
	"time"

	"github.com/meetprep/backend/internal/domain/topic"
)

// ProviderResult is the data an enrichment provider returned for one identifier
type ProviderResult struct {
	Provider  string
	Data      Payload
	FetchedAt time.Time
}

// EnrichmentProvider fetches third-party data about a person or company.
// Fetch returns ErrProviderNotFound (possibly wrapped) when the provider knows nothing
// about the identifier.
type EnrichmentProvider interface {
	Name() string
	Fetch(ctx context.Context, identifier string) (*ProviderResult, error)
}

// ProfileBuilder turns the canonical person data and the company data into a meeting
// preparation profile
type ProfileBuilder interface {
	BuildProfile(ctx context.Context, person, company Payload) (Payload, error)
}

// GoalGenerator proposes goals for an external meeting from its participants and companies
type GoalGenerator interface {
	GenerateGoals(ctx context.Context, meeting Payload, participants, companies []Payload) (Payload, error)
}

// Notification describes a saga that ended in failure
type Notification struct {
	Topic         topic.Topic
	TenantID      string
	ObjectID      string
	CorrelationID string
	CausedBy      topic.Topic
	Message       string
	OccurredAt    time.Time
}

// Notifier delivers notifications. Delivery is fire-and-forget: callers log errors
// and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
