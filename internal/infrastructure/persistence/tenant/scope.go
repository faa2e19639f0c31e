// Package tenant provides GORM scopes that confine queries to one tenant.
//
// Every enrichment table carries a tenant_id column. Repositories chain these scopes instead
// of spelling the condition out, so a query without a tenant is easy to spot:
//
//	db.Scopes(tenant.Scope(tenantID)).Where("email = ?", email).First(&m)
package tenant

import (
	"errors"

	"gorm.io/gorm"
)

// Column is the tenant column of every enrichment table
const Column = "tenant_id"

// ErrTenantIDRequired is added to the statement when a scope gets an empty tenant while
// required scoping is on
var ErrTenantIDRequired = errors.New("tenant_id is required")

// Scope filters on tenantID. The empty tenant is a valid tenant.
func Scope(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(Column+" = ?", tenantID)
	}
}

// RequiredScope filters on tenantID and fails the statement when it is empty
func RequiredScope(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == "" {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where(Column+" = ?", tenantID)
	}
}

// ObjectScope filters on one object of a tenant
func ObjectScope(objectID, tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("object_id = ? AND "+Column+" = ?", objectID, tenantID)
	}
}

// TopicScope filters on one status record key
func TopicScope(objectID, tenantID, topic string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("object_id = ? AND "+Column+" = ? AND topic = ?", objectID, tenantID, topic)
	}
}
