package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
)

var errNoProviderData = errors.New("no person provider returned data")

func emailOf(env *shared.Envelope) string {
	return person.NormalizeEmail(env.Payload.String("email"))
}

// personalData is the payload of new-personal-data
func personalData(email string, winner person.Source, changed []string) shared.Payload {
	fields := make([]any, len(changed))
	for i, f := range changed {
		fields[i] = f
	}
	return shared.Payload{
		"email":          email,
		"source":         string(winner),
		"changed_fields": fields,
	}
}

func failurePayload(email string, err error) shared.Payload {
	return shared.Payload{"email": email, "error": err.Error()}
}

// changedFieldCount reads the changed_fields list of a new-personal-data payload
func changedFieldCount(p shared.Payload) int {
	switch v := p["changed_fields"].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	}
	return 0
}

func loadPerson(ctx context.Context, persons person.Repository, env *shared.Envelope) (*person.Person, error) {
	email := emailOf(env)
	if email == "" {
		return nil, fmt.Errorf("%s without e-mail: %w", env.Topic, shared.ErrInvalidInput)
	}
	p, err := persons.GetByEmail(ctx, env.TenantID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %s: %w", email, err)
	}
	return p, nil
}
