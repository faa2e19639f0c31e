package models

import "time"

// MeetingJoinModel tracks which inputs of the goal-generation fan-in have arrived.
// Fired flips to true exactly once, when the last part arrives.
type MeetingJoinModel struct {
	MeetingID       string    `gorm:"type:varchar(64);primaryKey"`
	ParticipantData bool      `gorm:"not null"`
	CompanyData     bool      `gorm:"not null"`
	Fired           bool      `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeetingJoinModel) TableName() string {
	return "meeting_joins"
}

// Watch kinds
const (
	WatchParticipant = "participant"
	WatchDomain      = "domain"
)

// MeetingWatchModel links a meeting to a participant e-mail or company domain it waits on
type MeetingWatchModel struct {
	MeetingID string `gorm:"type:varchar(64);primaryKey"`
	Kind      string `gorm:"type:varchar(16);primaryKey"`
	Value     string `gorm:"type:varchar(320);primaryKey"`
}

// TableName returns the table name for GORM
func (MeetingWatchModel) TableName() string {
	return "meeting_watches"
}
