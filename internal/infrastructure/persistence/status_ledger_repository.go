package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"github.com/meetprep/backend/internal/infrastructure/persistence/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStatusLedger implements shared.StatusLedger using GORM.
// Start relies on INSERT ... ON CONFLICT DO NOTHING, so concurrent duplicate starts are safe.
type GormStatusLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStatusLedger creates a new GormStatusLedger
func NewGormStatusLedger(db *gorm.DB, logger *zap.Logger) *GormStatusLedger {
	return &GormStatusLedger{db: db, logger: logger}
}

// WithTx returns a new ledger instance with the given transaction
func (r *GormStatusLedger) WithTx(tx *gorm.DB) *GormStatusLedger {
	return &GormStatusLedger{db: tx, logger: r.logger}
}

// Start creates the record in state STARTED unless the key exists
func (r *GormStatusLedger) Start(ctx context.Context, in shared.StartInput) (bool, error) {
	if in.ObjectID == "" || !in.Topic.IsValid() {
		return false, shared.ErrInvalidInput
	}
	model := models.StatusRecordModelFromStart(in, time.Now().UTC())
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_id"}, {Name: "tenant_id"}, {Name: "topic"}},
			DoNothing: true,
		}).
		Create(model)

	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		r.logger.Debug("status record already exists",
			zap.String("object_id", in.ObjectID),
			zap.String("tenant_id", in.TenantID),
			zap.String("topic", in.Topic.String()),
		)
		return false, nil
	}
	return true, nil
}

// Update moves an existing record to state
func (r *GormStatusLedger) Update(ctx context.Context, objectID, tenantID string, t topic.Topic, state shared.StatusState, errMsg string) error {
	if !state.IsValid() {
		return shared.ErrInvalidInput
	}
	result := r.db.WithContext(ctx).
		Model(&models.StatusRecordModel{}).
		Scopes(tenant.TopicScope(objectID, tenantID, string(t))).
		Updates(map[string]any{
			"state":         string(state),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Get returns one record
func (r *GormStatusLedger) Get(ctx context.Context, objectID, tenantID string, t topic.Topic) (*shared.StatusRecord, error) {
	var model models.StatusRecordModel
	err := r.db.WithContext(ctx).
		Scopes(tenant.TopicScope(objectID, tenantID, string(t))).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Delete removes one record
func (r *GormStatusLedger) Delete(ctx context.Context, objectID, tenantID string, t topic.Topic) error {
	result := r.db.WithContext(ctx).
		Scopes(tenant.TopicScope(objectID, tenantID, string(t))).
		Delete(&models.StatusRecordModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListByObject returns every record of an object ordered by start time
func (r *GormStatusLedger) ListByObject(ctx context.Context, objectID, tenantID string) ([]shared.StatusRecord, error) {
	var rows []models.StatusRecordModel
	err := r.db.WithContext(ctx).
		Scopes(tenant.ObjectScope(objectID, tenantID)).
		Order("started_at ASC, topic ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]shared.StatusRecord, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// DeleteByObject removes every record of an object
func (r *GormStatusLedger) DeleteByObject(ctx context.Context, objectID, tenantID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Scopes(tenant.ObjectScope(objectID, tenantID)).
		Delete(&models.StatusRecordModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormStatusLedger implements shared.StatusLedger
var _ shared.StatusLedger = (*GormStatusLedger)(nil)
