package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCheckpointStore implements shared.CheckpointStore using GORM
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore creates a new GormCheckpointStore
func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

// Load returns the last committed offset, or "" when the group never committed on partition
func (s *GormCheckpointStore) Load(ctx context.Context, group string, partition int) (string, error) {
	var model models.CheckpointModel
	err := s.db.WithContext(ctx).
		Where("consumer_group = ? AND partition_no = ?", group, partition).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return model.Offset, nil
}

// Commit upserts the checkpoint of (group, partition)
func (s *GormCheckpointStore) Commit(ctx context.Context, group string, partition int, offset string) error {
	model := &models.CheckpointModel{
		ConsumerGroup: group,
		Partition:     partition,
		Offset:        offset,
		UpdatedAt:     time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "consumer_group"}, {Name: "partition_no"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_offset", "updated_at"}),
		}).
		Create(model).Error
}

// List returns every checkpoint, restricted to group when it is not empty
func (s *GormCheckpointStore) List(ctx context.Context, group string) ([]shared.Checkpoint, error) {
	query := s.db.WithContext(ctx).Model(&models.CheckpointModel{})
	if group != "" {
		query = query.Where("consumer_group = ?", group)
	}
	var rows []models.CheckpointModel
	if err := query.Order("consumer_group ASC, partition_no ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]shared.Checkpoint, len(rows))
	for i, r := range rows {
		out[i] = shared.Checkpoint{
			Group:     r.ConsumerGroup,
			Partition: r.Partition,
			Offset:    r.Offset,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out, nil
}

var _ shared.CheckpointStore = (*GormCheckpointStore)(nil)
