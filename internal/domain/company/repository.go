package company

import (
	"context"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Repository persists companies keyed by domain
type Repository interface {
	shared.Repository[Company]
	ExistsByDomain(ctx context.Context, domain string) (bool, error)
	// GetByDomain returns shared.ErrNotFound when the domain was never seen
	GetByDomain(ctx context.Context, domain string) (*Company, error)
}
