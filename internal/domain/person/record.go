package person

import (
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Source names the provider slot a record came from
type Source string

const (
	SourceNone      Source = ""
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// RecordStatus is the tri-state outcome of the last fetch from a provider
type RecordStatus string

const (
	StatusUnknown        RecordStatus = ""
	StatusFetched        RecordStatus = "FETCHED"
	StatusTriedButFailed RecordStatus = "TRIED_BUT_FAILED"
)

// ProviderRecord is the last known result of one provider for a person
type ProviderRecord struct {
	Source   Source
	Provider string
	Status   RecordStatus
	// UpdatedAt is the time of the last successful fetch; failed attempts leave it alone
	UpdatedAt time.Time
	// AttemptedAt is the time of the last call to the provider, whatever its outcome
	AttemptedAt time.Time
	Data        shared.Payload
}

// Fetched builds a successful record
func Fetched(src Source, provider string, data shared.Payload, at time.Time) ProviderRecord {
	at = at.UTC()
	return ProviderRecord{Source: src, Provider: provider, Status: StatusFetched, UpdatedAt: at, AttemptedAt: at, Data: data.Clone()}
}

// Failed builds a failed record. The data and the time of the last successful fetch are
// kept so a later arbitration can still compare against and fall back to them.
func Failed(prev ProviderRecord, provider string, at time.Time) ProviderRecord {
	return ProviderRecord{
		Source:      prev.Source,
		Provider:    provider,
		Status:      StatusTriedButFailed,
		UpdatedAt:   prev.UpdatedAt,
		AttemptedAt: at.UTC(),
		Data:        prev.Data,
	}
}

// IsFreshWithin reports whether the record was fetched successfully less than ttl ago
func (r ProviderRecord) IsFreshWithin(ttl time.Duration, now time.Time) bool {
	if r.Status != StatusFetched || r.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(r.UpdatedAt) < ttl
}

// NewerThan reports whether r was fetched strictly later than other
func (r ProviderRecord) NewerThan(other ProviderRecord) bool {
	return r.UpdatedAt.After(other.UpdatedAt)
}
