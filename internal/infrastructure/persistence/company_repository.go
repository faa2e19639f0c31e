package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCompanyRepository implements company.Repository using GORM
type GormCompanyRepository struct {
	db *gorm.DB
}

// NewGormCompanyRepository creates a new GormCompanyRepository
func NewGormCompanyRepository(db *gorm.DB) *GormCompanyRepository {
	return &GormCompanyRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCompanyRepository) WithTx(tx *gorm.DB) *GormCompanyRepository {
	return &GormCompanyRepository{db: tx}
}

// Exists reports whether a company with id exists
func (r *GormCompanyRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CompanyModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsByDomain reports whether the domain was seen before
func (r *GormCompanyRepository) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CompanyModel{}).
		Where("domain = ?", company.NormalizeDomain(domain)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get finds a company by ID
func (r *GormCompanyRepository) Get(ctx context.Context, id uuid.UUID) (*company.Company, error) {
	var model models.CompanyModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByDomain finds a company by domain
func (r *GormCompanyRepository) GetByDomain(ctx context.Context, domain string) (*company.Company, error) {
	var model models.CompanyModel
	err := r.db.WithContext(ctx).
		Where("domain = ?", company.NormalizeDomain(domain)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert writes the whole company, last writer wins
func (r *GormCompanyRepository) Upsert(ctx context.Context, c *company.Company) error {
	model := models.CompanyModelFromDomain(c)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Delete removes a company
func (r *GormCompanyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.CompanyModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ company.Repository = (*GormCompanyRepository)(nil)
