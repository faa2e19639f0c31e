package models

import (
	"time"

	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
)

// PersonModel is the persistence model for the Person aggregate.
// Each provider slot is flattened into its own columns; (tenant_id, email) is unique.
type PersonModel struct {
	TenantModel
	Email         string         `gorm:"type:varchar(320);not null;index"`
	CompanyDomain string         `gorm:"type:varchar(255);not null;index"`
	Data          shared.Payload `gorm:"type:jsonb;serializer:json"`
	DataSource    string         `gorm:"type:varchar(16);not null;default:''"`

	PrimaryProvider    string         `gorm:"type:varchar(64)"`
	PrimaryStatus      string         `gorm:"type:varchar(20)"`
	PrimaryUpdatedAt   *time.Time     `gorm:""`
	PrimaryAttemptedAt *time.Time     `gorm:""`
	PrimaryData        shared.Payload `gorm:"type:jsonb;serializer:json"`

	SecondaryProvider    string         `gorm:"type:varchar(64)"`
	SecondaryStatus      string         `gorm:"type:varchar(20)"`
	SecondaryUpdatedAt   *time.Time     `gorm:""`
	SecondaryAttemptedAt *time.Time     `gorm:""`
	SecondaryData        shared.Payload `gorm:"type:jsonb;serializer:json"`

	ProfileState   string         `gorm:"type:varchar(16);index"`
	Profile        shared.Payload `gorm:"type:jsonb;serializer:json"`
	ProfileBuiltAt *time.Time
}

// TableName returns the table name for GORM
func (PersonModel) TableName() string {
	return "persons"
}

// ToDomain converts the persistence model to a domain Person
func (m *PersonModel) ToDomain() *person.Person {
	return &person.Person{
		TenantEntity:   m.ToTenantEntity(),
		Email:          m.Email,
		CompanyDomain:  m.CompanyDomain,
		Data:           m.Data,
		DataSource:     person.Source(m.DataSource),
		Primary:        recordFromColumns(person.SourcePrimary, m.PrimaryProvider, m.PrimaryStatus, m.PrimaryUpdatedAt, m.PrimaryAttemptedAt, m.PrimaryData),
		Secondary:      recordFromColumns(person.SourceSecondary, m.SecondaryProvider, m.SecondaryStatus, m.SecondaryUpdatedAt, m.SecondaryAttemptedAt, m.SecondaryData),
		ProfileState:   person.ProfileState(m.ProfileState),
		Profile:        m.Profile,
		ProfileBuiltAt: m.ProfileBuiltAt,
	}
}

// PersonModelFromDomain converts a domain Person to the persistence model
func PersonModelFromDomain(p *person.Person) *PersonModel {
	m := &PersonModel{
		Email:          p.Email,
		CompanyDomain:  p.CompanyDomain,
		Data:           p.Data,
		DataSource:     string(p.DataSource),
		ProfileState:   string(p.ProfileState),
		Profile:        p.Profile,
		ProfileBuiltAt: p.ProfileBuiltAt,
	}
	m.FromDomainTenantEntity(p.TenantEntity)
	m.PrimaryProvider, m.PrimaryStatus, m.PrimaryUpdatedAt, m.PrimaryAttemptedAt, m.PrimaryData = recordColumns(p.Primary)
	m.SecondaryProvider, m.SecondaryStatus, m.SecondaryUpdatedAt, m.SecondaryAttemptedAt, m.SecondaryData = recordColumns(p.Secondary)
	return m
}

func recordFromColumns(src person.Source, provider, status string, updatedAt, attemptedAt *time.Time, data shared.Payload) person.ProviderRecord {
	rec := person.ProviderRecord{
		Source:   src,
		Provider: provider,
		Status:   person.RecordStatus(status),
		Data:     data,
	}
	if updatedAt != nil {
		rec.UpdatedAt = updatedAt.UTC()
	}
	if attemptedAt != nil {
		rec.AttemptedAt = attemptedAt.UTC()
	}
	return rec
}

func recordColumns(rec person.ProviderRecord) (string, string, *time.Time, *time.Time, shared.Payload) {
	return rec.Provider, string(rec.Status), optionalTime(rec.UpdatedAt), optionalTime(rec.AttemptedAt), rec.Data
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
