package models

import "time"

// CheckpointModel stores the last processed offset of a consumer group on one partition
type CheckpointModel struct {
	ConsumerGroup string    `gorm:"column:consumer_group;type:varchar(128);primaryKey"`
	Partition     int       `gorm:"column:partition_no;primaryKey"`
	Offset        string    `gorm:"column:last_offset;type:varchar(64);not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CheckpointModel) TableName() string {
	return "bus_checkpoints"
}
