package meeting

import (
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// InputFromPayload reads a new-meeting document. Participants may be plain e-mail strings
// or objects with email, name and self fields; a "self_email" field marks the calendar owner.
func InputFromPayload(tenantID string, p shared.Payload) (Input, error) {
	in := Input{
		TenantID:     tenantID,
		ExternalID:   firstNonEmpty(p.String("external_id"), p.String("calendar_id"), p.String("meeting_id")),
		Subject:      p.String("subject"),
		Description:  p.String("description"),
		TenantDomain: p.String("tenant_domain"),
	}
	var err error
	if in.StartsAt, err = parseTime(p, "start"); err != nil {
		return Input{}, err
	}
	if in.EndsAt, err = parseTime(p, "end"); err != nil {
		return Input{}, err
	}

	self := CanonicalEmail(p.String("self_email"))
	raw, _ := p["participants"].([]any)
	for _, r := range raw {
		var part Participant
		switch v := r.(type) {
		case string:
			part.Email = v
		case map[string]any:
			doc := shared.Payload(v)
			part.Email = doc.String("email")
			part.Name = doc.String("name")
			part.Self, _ = v["self"].(bool)
		default:
			continue
		}
		if self != "" && CanonicalEmail(part.Email) == self {
			part.Self = true
		}
		in.Participants = append(in.Participants, part)
	}
	return in, nil
}

func parseTime(p shared.Payload, key string) (time.Time, error) {
	s := p.String(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("meeting %s %q: %w", key, s, shared.ErrInvalidInput)
	}
	return t.UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
