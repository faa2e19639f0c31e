// Package person holds the person aggregate and the pure policies of the person enrichment
// saga: provider records, freshness arbitration and field-level merging.
package person

import (
	"strings"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// ProfileState tracks the profile build step of a person
type ProfileState string

const (
	ProfileNone    ProfileState = ""
	ProfileWaiting ProfileState = "WAITING"
	ProfileBuilt   ProfileState = "BUILT"
	ProfileFailed  ProfileState = "FAILED"
)

// Person is the canonical person aggregate, identified by its e-mail within a tenant
type Person struct {
	shared.TenantEntity
	Email         string
	CompanyDomain string
	// Data is the canonical merged view derived from the winning provider record
	Data shared.Payload
	// DataSource is the provider slot Data was last derived from
	DataSource Source
	Primary    ProviderRecord
	Secondary  ProviderRecord

	ProfileState   ProfileState
	Profile        shared.Payload
	ProfileBuiltAt *time.Time
}

// New creates a person for the given e-mail. The e-mail is normalised; an invalid address
// returns shared.ErrInvalidInput.
func New(tenantID, email string) (*Person, error) {
	normalized := NormalizeEmail(email)
	domain := DomainOf(normalized)
	if domain == "" {
		return nil, shared.ErrInvalidInput
	}
	return &Person{
		TenantEntity:  shared.NewTenantEntity(tenantID),
		Email:         normalized,
		CompanyDomain: domain,
		Data:          shared.Payload{},
		Primary:       ProviderRecord{Source: SourcePrimary},
		Secondary:     ProviderRecord{Source: SourceSecondary},
	}, nil
}

// Record returns the provider record of the given source
func (p *Person) Record(src Source) ProviderRecord {
	if src == SourceSecondary {
		return p.Secondary
	}
	return p.Primary
}

// SetRecord replaces the provider record of its source
func (p *Person) SetRecord(rec ProviderRecord) {
	switch rec.Source {
	case SourceSecondary:
		p.Secondary = rec
	default:
		rec.Source = SourcePrimary
		p.Primary = rec
	}
	p.Touch()
}

// ApplyWinner derives the canonical view from the winning record and returns the changed
// fields. A refresh from the slot that already feeds the view is merged field by field; a
// different slot replaces the view, and fields only the previous slot had count as changed.
func (p *Person) ApplyWinner(rec ProviderRecord) []string {
	var (
		next    shared.Payload
		changed []string
	)
	if rec.Source == p.DataSource {
		next, changed = DiffMerge(p.Data, rec.Data)
	} else {
		next, changed = Rebuild(p.Data, rec.Data)
	}
	switched := rec.Source != p.DataSource
	p.Data = next
	p.DataSource = rec.Source
	if len(changed) > 0 || switched {
		p.Touch()
	}
	return changed
}

// MarkProfile moves the profile step to state and stores the built profile when present
func (p *Person) MarkProfile(state ProfileState, profile shared.Payload) {
	p.ProfileState = state
	if state == ProfileBuilt {
		now := time.Now().UTC()
		p.Profile = profile.Clone()
		p.ProfileBuiltAt = &now
	}
	p.Touch()
}

// HasData reports whether any provider contributed to the canonical view
func (p *Person) HasData() bool {
	return len(p.Data) > 0
}

// Summary is the document handed to profile and goal generators
func (p *Person) Summary() shared.Payload {
	out := shared.Payload{"email": p.Email, "company_domain": p.CompanyDomain}
	if p.Data != nil {
		out["data"] = map[string]any(p.Data.Clone())
	}
	if p.ProfileState == ProfileBuilt && p.Profile != nil {
		out["profile"] = map[string]any(p.Profile.Clone())
	}
	return out
}

// NormalizeEmail lower-cases and trims an e-mail address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DomainOf returns the domain part of an e-mail address, or "" when it has none
func DomainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

var freemailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"aol.com":        {},
	"proton.me":      {},
	"protonmail.com": {},
	"gmx.com":        {},
	"gmx.de":         {},
	"yandex.ru":      {},
	"mail.ru":        {},
	"qq.com":         {},
	"163.com":        {},
	"zoho.com":       {},
	"fastmail.com":   {},
}

// IsFreemail reports whether domain belongs to a consumer mail service and therefore
// identifies no company
func IsFreemail(domain string) bool {
	_, ok := freemailDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}
