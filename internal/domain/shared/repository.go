package shared

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the base interface of the entity stores used by the sagas.
// Writes are last-writer-wins per row.
type Repository[T any] interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Upsert(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id uuid.UUID) error
}
