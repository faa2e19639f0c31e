package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
)

// StatusRecordModel is one row of the status ledger. (object_id, tenant_id, topic) is unique;
// tenant_id is empty for global objects such as companies.
type StatusRecordModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	CorrelationID string    `gorm:"type:varchar(64);not null;index"`
	ObjectID      string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_status_object_tenant_topic,priority:1"`
	TenantID      string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_status_object_tenant_topic,priority:2"`
	Topic         string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_status_object_tenant_topic,priority:3"`
	ObjectType    string    `gorm:"type:varchar(32);not null"`
	PreviousTopic string    `gorm:"type:varchar(64);not null"`
	State         string    `gorm:"type:varchar(16);not null;index"`
	ErrorMessage  string    `gorm:"type:text"`
	StartedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StatusRecordModel) TableName() string {
	return "status_records"
}

// ToDomain converts the row to a domain StatusRecord
func (m *StatusRecordModel) ToDomain() *shared.StatusRecord {
	return &shared.StatusRecord{
		CorrelationID: m.CorrelationID,
		ObjectID:      m.ObjectID,
		TenantID:      m.TenantID,
		Topic:         topic.Topic(m.Topic),
		ObjectType:    m.ObjectType,
		PreviousTopic: topic.Topic(m.PreviousTopic),
		State:         shared.StatusState(m.State),
		ErrorMessage:  m.ErrorMessage,
		StartedAt:     m.StartedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StatusRecordModelFromStart builds a STARTED row for a new ledger entry
func StatusRecordModelFromStart(in shared.StartInput, now time.Time) *StatusRecordModel {
	return &StatusRecordModel{
		ID:            uuid.New(),
		CorrelationID: in.CorrelationID,
		ObjectID:      in.ObjectID,
		TenantID:      in.TenantID,
		Topic:         string(in.Topic),
		ObjectType:    in.ObjectType,
		PreviousTopic: string(in.CausationTopic),
		State:         string(shared.StatusStarted),
		StartedAt:     now,
		UpdatedAt:     now,
	}
}
