package models

import (
	"time"

	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CompanyModel is the persistence model for the Company aggregate.
// Companies are GLOBAL (not tenant-scoped).
type CompanyModel struct {
	BaseModel
	Domain       string              `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string              `gorm:"type:varchar(255)"`
	Status       string              `gorm:"type:varchar(16);not null;index"`
	Provider     string              `gorm:"type:varchar(64)"`
	Data         shared.Payload      `gorm:"type:jsonb;serializer:json"`
	Revenue      decimal.NullDecimal `gorm:"type:decimal(20,2)"`
	FundingTotal decimal.NullDecimal `gorm:"type:decimal(20,2)"`
	Currency     string              `gorm:"type:varchar(3)"`
	EnrichedAt   *time.Time

	News          []company.NewsItem `gorm:"type:jsonb;serializer:json"`
	NewsFetchedAt *time.Time
}

// TableName returns the table name for GORM
func (CompanyModel) TableName() string {
	return "companies"
}

// ToDomain converts the persistence model to a domain Company
func (m *CompanyModel) ToDomain() *company.Company {
	return &company.Company{
		BaseEntity: m.BaseModel.ToDomain(),
		Domain:     m.Domain,
		Name:       m.Name,
		Status:     company.EnrichmentStatus(m.Status),
		Provider:   m.Provider,
		Data:       m.Data,
		Financials: company.Financials{
			Revenue:      m.Revenue,
			FundingTotal: m.FundingTotal,
			Currency:     m.Currency,
		},
		EnrichedAt:    m.EnrichedAt,
		News:          m.News,
		NewsFetchedAt: m.NewsFetchedAt,
	}
}

// CompanyModelFromDomain converts a domain Company to the persistence model
func CompanyModelFromDomain(c *company.Company) *CompanyModel {
	m := &CompanyModel{
		Domain:        c.Domain,
		Name:          c.Name,
		Status:        string(c.Status),
		Provider:      c.Provider,
		Data:          c.Data,
		Revenue:       c.Financials.Revenue,
		FundingTotal:  c.Financials.FundingTotal,
		Currency:      c.Financials.Currency,
		EnrichedAt:    c.EnrichedAt,
		News:          c.News,
		NewsFetchedAt: c.NewsFetchedAt,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}
