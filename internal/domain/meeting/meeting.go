// Package meeting holds the meeting aggregate: participant canonicalisation, change
// detection hashes, classification and the fan-in join the goal generation waits on.
package meeting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Classification says who takes part in a meeting relative to the tenant
type Classification string

const (
	ClassPrivate  Classification = "PRIVATE"
	ClassInternal Classification = "INTERNAL"
	ClassExternal Classification = "EXTERNAL"
)

// GoalsState tracks the goal generation step
type GoalsState string

const (
	GoalsNone      GoalsState = ""
	GoalsPending   GoalsState = "PENDING"
	GoalsGenerated GoalsState = "GENERATED"
	GoalsFailed    GoalsState = "FAILED"
)

// Meeting is a calendar event of a tenant, deduplicated by its external calendar id
type Meeting struct {
	shared.TenantEntity
	ExternalID      string
	Subject         string
	Description     string
	StartsAt        time.Time
	EndsAt          time.Time
	Participants    []Participant
	ParticipantHash string
	ContentHash     string
	TenantDomain    string
	Classification  Classification

	GoalsState GoalsState
	Goals      shared.Payload
}

// Input is the raw meeting as a calendar sync delivers it
type Input struct {
	TenantID     string
	ExternalID   string
	Subject      string
	Description  string
	StartsAt     time.Time
	EndsAt       time.Time
	Participants []Participant
	TenantDomain string
}

// New canonicalises the input and computes hashes and classification
func New(in Input) (*Meeting, error) {
	if strings.TrimSpace(in.ExternalID) == "" {
		return nil, fmt.Errorf("meeting without external id: %w", shared.ErrInvalidInput)
	}
	m := &Meeting{
		TenantEntity: shared.NewTenantEntity(in.TenantID),
		ExternalID:   strings.TrimSpace(in.ExternalID),
		Subject:      in.Subject,
		Description:  in.Description,
		StartsAt:     in.StartsAt.UTC(),
		EndsAt:       in.EndsAt.UTC(),
		Participants: CanonicalParticipants(in.Participants),
	}
	m.ParticipantHash = ParticipantHash(m.Participants)
	m.ContentHash = ContentHash(m.ParticipantHash, m.Subject, m.Description, m.StartsAt, m.EndsAt)
	m.TenantDomain = resolveTenantDomain(in.TenantDomain, m.Participants)
	m.Classification = Classify(m.Participants, m.TenantDomain)
	return m, nil
}

// Change describes how an incoming version differs from the stored meeting
type Change struct {
	Unchanged           bool
	ParticipantsChanged bool
}

// Diff compares a stored meeting with an incoming version of the same external id
func Diff(stored, incoming *Meeting) Change {
	if stored.ContentHash == incoming.ContentHash {
		return Change{Unchanged: true}
	}
	return Change{ParticipantsChanged: stored.ParticipantHash != incoming.ParticipantHash}
}

// Apply copies the content of incoming onto m, keeping identity and goal state
func (m *Meeting) Apply(incoming *Meeting) {
	m.Subject = incoming.Subject
	m.Description = incoming.Description
	m.StartsAt = incoming.StartsAt
	m.EndsAt = incoming.EndsAt
	m.Participants = incoming.Participants
	m.ParticipantHash = incoming.ParticipantHash
	m.ContentHash = incoming.ContentHash
	m.TenantDomain = incoming.TenantDomain
	m.Classification = incoming.Classification
	m.Touch()
}

// Classify decides the meeting class. Only self present is PRIVATE; every participant in the
// tenant domain is INTERNAL; anything else is EXTERNAL.
func Classify(participants []Participant, tenantDomain string) Classification {
	others := 0
	external := false
	for _, p := range participants {
		if p.Self {
			continue
		}
		others++
		if tenantDomain == "" || p.Domain() != tenantDomain {
			external = true
		}
	}
	switch {
	case others == 0:
		return ClassPrivate
	case !external:
		return ClassInternal
	default:
		return ClassExternal
	}
}

// ExternalParticipants returns the participants outside the tenant domain
func (m *Meeting) ExternalParticipants() []Participant {
	var out []Participant
	for _, p := range m.Participants {
		if p.Self || p.Domain() == m.TenantDomain {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ExternalDomains returns the distinct domains of external participants, sorted
func (m *Meeting) ExternalDomains() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range m.ExternalParticipants() {
		d := p.Domain()
		if _, ok := seen[d]; ok || d == "" {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// MarkGoals moves the goal step to state, storing goals on success
func (m *Meeting) MarkGoals(state GoalsState, goals shared.Payload) {
	m.GoalsState = state
	if state == GoalsGenerated {
		m.Goals = goals.Clone()
	}
	m.Touch()
}

// Summary is the document handed to the goal generator
func (m *Meeting) Summary() shared.Payload {
	emails := make([]any, 0, len(m.Participants))
	for _, p := range m.Participants {
		emails = append(emails, p.Email)
	}
	return shared.Payload{
		"meeting_id":     m.ID.String(),
		"external_id":    m.ExternalID,
		"subject":        m.Subject,
		"description":    m.Description,
		"starts_at":      m.StartsAt.Format(time.RFC3339),
		"ends_at":        m.EndsAt.Format(time.RFC3339),
		"classification": string(m.Classification),
		"participants":   emails,
	}
}

func resolveTenantDomain(explicit string, participants []Participant) string {
	if d := strings.ToLower(strings.TrimSpace(explicit)); d != "" {
		return d
	}
	for _, p := range participants {
		if p.Self {
			return p.Domain()
		}
	}
	return ""
}
