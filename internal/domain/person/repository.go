package person

import (
	"context"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Repository persists persons. The natural key is (tenant, lower-cased e-mail).
type Repository interface {
	shared.Repository[Person]
	// GetByEmail returns shared.ErrNotFound when the tenant has no such person
	GetByEmail(ctx context.Context, tenantID, email string) (*Person, error)
	// CreateIfAbsent inserts p unless a person with the same natural key exists, in which
	// case the stored person is returned and created is false
	CreateIfAbsent(ctx context.Context, p *Person) (stored *Person, created bool, err error)
	// ListWaitingForCompany returns persons whose profile build waits on the company domain
	ListWaitingForCompany(ctx context.Context, domain string) ([]Person, error)
}
