package meeting

import (
	"context"

	"github.com/meetprep/backend/internal/domain/shared"
)

// Repository persists meetings. The dedup key is (tenant, external id).
type Repository interface {
	shared.Repository[Meeting]
	// GetByExternalID returns shared.ErrNotFound when the tenant has no such meeting
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*Meeting, error)
}
