package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"github.com/meetprep/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPersonRepository implements person.Repository using GORM
type GormPersonRepository struct {
	db *gorm.DB
}

// NewGormPersonRepository creates a new GormPersonRepository
func NewGormPersonRepository(db *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormPersonRepository) WithTx(tx *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: tx}
}

// Exists reports whether a person with id exists
func (r *GormPersonRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PersonModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get finds a person by ID
func (r *GormPersonRepository) Get(ctx context.Context, id uuid.UUID) (*person.Person, error) {
	var model models.PersonModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByEmail finds a person by its natural key
func (r *GormPersonRepository) GetByEmail(ctx context.Context, tenantID, email string) (*person.Person, error) {
	var model models.PersonModel
	err := r.db.WithContext(ctx).
		Scopes(tenant.Scope(tenantID)).
		Where("email = ?", person.NormalizeEmail(email)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert writes the whole person, last writer wins
func (r *GormPersonRepository) Upsert(ctx context.Context, p *person.Person) error {
	model := models.PersonModelFromDomain(p)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// CreateIfAbsent inserts p unless (tenant_id, email) exists
func (r *GormPersonRepository) CreateIfAbsent(ctx context.Context, p *person.Person) (*person.Person, bool, error) {
	model := models.PersonModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "email"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		stored, err := r.GetByEmail(ctx, p.TenantID, p.Email)
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}
	return p, true, nil
}

// ListWaitingForCompany returns persons of every tenant whose profile waits on domain
func (r *GormPersonRepository) ListWaitingForCompany(ctx context.Context, domain string) ([]person.Person, error) {
	var rows []models.PersonModel
	err := r.db.WithContext(ctx).
		Where("company_domain = ? AND profile_state = ?", domain, string(person.ProfileWaiting)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]person.Person, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Delete removes a person
func (r *GormPersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PersonModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ person.Repository = (*GormPersonRepository)(nil)
