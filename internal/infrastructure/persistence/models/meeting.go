package models

import (
	"time"

	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
)

// MeetingModel is the persistence model for the Meeting aggregate.
// (tenant_id, external_id) is unique.
type MeetingModel struct {
	TenantModel
	ExternalID      string                `gorm:"type:varchar(255);not null;index"`
	Subject         string                `gorm:"type:varchar(500)"`
	Description     string                `gorm:"type:text"`
	StartsAt        time.Time             `gorm:"not null"`
	EndsAt          time.Time             `gorm:"not null"`
	Participants    []meeting.Participant `gorm:"type:jsonb;serializer:json"`
	ParticipantHash string                `gorm:"type:char(64);not null"`
	ContentHash     string                `gorm:"type:char(64);not null"`
	TenantDomain    string                `gorm:"type:varchar(255)"`
	Classification  string                `gorm:"type:varchar(16);not null"`
	GoalsState      string                `gorm:"type:varchar(16)"`
	Goals           shared.Payload        `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (MeetingModel) TableName() string {
	return "meetings"
}

// ToDomain converts the persistence model to a domain Meeting
func (m *MeetingModel) ToDomain() *meeting.Meeting {
	return &meeting.Meeting{
		TenantEntity:    m.ToTenantEntity(),
		ExternalID:      m.ExternalID,
		Subject:         m.Subject,
		Description:     m.Description,
		StartsAt:        m.StartsAt.UTC(),
		EndsAt:          m.EndsAt.UTC(),
		Participants:    m.Participants,
		ParticipantHash: m.ParticipantHash,
		ContentHash:     m.ContentHash,
		TenantDomain:    m.TenantDomain,
		Classification:  meeting.Classification(m.Classification),
		GoalsState:      meeting.GoalsState(m.GoalsState),
		Goals:           m.Goals,
	}
}

// MeetingModelFromDomain converts a domain Meeting to the persistence model
func MeetingModelFromDomain(mt *meeting.Meeting) *MeetingModel {
	m := &MeetingModel{
		ExternalID:      mt.ExternalID,
		Subject:         mt.Subject,
		Description:     mt.Description,
		StartsAt:        mt.StartsAt,
		EndsAt:          mt.EndsAt,
		Participants:    mt.Participants,
		ParticipantHash: mt.ParticipantHash,
		ContentHash:     mt.ContentHash,
		TenantDomain:    mt.TenantDomain,
		Classification:  string(mt.Classification),
		GoalsState:      string(mt.GoalsState),
		Goals:           mt.Goals,
	}
	m.FromDomainTenantEntity(mt.TenantEntity)
	return m
}
