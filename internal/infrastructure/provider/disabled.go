package provider

import (
	"context"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Disabled stands in for a provider without configuration. Every call fails with
// shared.ErrProviderDisabled so the sagas take their fallback path.
type Disabled struct {
	name string
}

// NewDisabled creates a disabled provider
func NewDisabled(name string) *Disabled {
	return &Disabled{name: name}
}

func (d *Disabled) Name() string { return d.name }

func (d *Disabled) Fetch(_ context.Context, identifier string) (*shared.ProviderResult, error) {
	return nil, d.err(identifier)
}

func (d *Disabled) BuildProfile(_ context.Context, person, _ shared.Payload) (shared.Payload, error) {
	return nil, d.err(person.String("email"))
}

func (d *Disabled) GenerateGoals(_ context.Context, meeting shared.Payload, _, _ []shared.Payload) (shared.Payload, error) {
	return nil, d.err(meeting.String("meeting_id"))
}

func (d *Disabled) err(identifier string) error {
	return &shared.ProviderError{Provider: d.name, Identifier: identifier, Err: shared.ErrProviderDisabled}
}

var (
	_ shared.EnrichmentProvider = (*Disabled)(nil)
	_ shared.ProfileBuilder     = (*Disabled)(nil)
	_ shared.GoalGenerator      = (*Disabled)(nil)
)
