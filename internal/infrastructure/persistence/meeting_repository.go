package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"github.com/meetprep/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMeetingRepository implements meeting.Repository using GORM
type GormMeetingRepository struct {
	db *gorm.DB
}

// NewGormMeetingRepository creates a new GormMeetingRepository
func NewGormMeetingRepository(db *gorm.DB) *GormMeetingRepository {
	return &GormMeetingRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormMeetingRepository) WithTx(tx *gorm.DB) *GormMeetingRepository {
	return &GormMeetingRepository{db: tx}
}

// Exists reports whether a meeting with id exists
func (r *GormMeetingRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MeetingModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get finds a meeting by ID
func (r *GormMeetingRepository) Get(ctx context.Context, id uuid.UUID) (*meeting.Meeting, error) {
	var model models.MeetingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByExternalID finds a meeting by its calendar id
func (r *GormMeetingRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*meeting.Meeting, error) {
	var model models.MeetingModel
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("external_id = ?", externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert writes the whole meeting, last writer wins
func (r *GormMeetingRepository) Upsert(ctx context.Context, m *meeting.Meeting) error {
	model := models.MeetingModelFromDomain(m)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Delete removes a meeting
func (r *GormMeetingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.MeetingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ meeting.Repository = (*GormMeetingRepository)(nil)
