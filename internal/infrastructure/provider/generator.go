package provider

import (
	"context"
	"net/http"

	"github.com/meetprep/backend/internal/domain/shared"
)

// HTTPProfileBuilder posts the person and company documents to the profile service
type HTTPProfileBuilder struct {
	client *Client
}

// NewHTTPProfileBuilder creates a profile builder on top of client
func NewHTTPProfileBuilder(client *Client) *HTTPProfileBuilder {
	return &HTTPProfileBuilder{client: client}
}

func (b *HTTPProfileBuilder) BuildProfile(ctx context.Context, person, company shared.Payload) (shared.Payload, error) {
	return b.client.Do(ctx, http.MethodPost, "/profiles", person.String("email"), map[string]any{
		"person":  person,
		"company": company,
	})
}

// HTTPGoalGenerator posts an external meeting with its participants to the goal service
type HTTPGoalGenerator struct {
	client *Client
}

// NewHTTPGoalGenerator creates a goal generator on top of client
func NewHTTPGoalGenerator(client *Client) *HTTPGoalGenerator {
	return &HTTPGoalGenerator{client: client}
}

func (g *HTTPGoalGenerator) GenerateGoals(ctx context.Context, meeting shared.Payload, participants, companies []shared.Payload) (shared.Payload, error) {
	return g.client.Do(ctx, http.MethodPost, "/goals", meeting.String("meeting_id"), map[string]any{
		"meeting":      meeting,
		"participants": participants,
		"companies":    companies,
	})
}

var (
	_ shared.ProfileBuilder = (*HTTPProfileBuilder)(nil)
	_ shared.GoalGenerator  = (*HTTPGoalGenerator)(nil)
)
