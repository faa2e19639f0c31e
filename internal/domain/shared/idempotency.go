package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed envelope IDs so transport redeliveries are absorbed
type IdempotencyStore interface {
	// MarkProcessed marks an envelope as processed with a TTL
	// Returns true if the envelope was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, envelopeID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an envelope has already been processed
	IsProcessed(ctx context.Context, envelopeID string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed envelope ID is remembered.
	// Default: 24 hours
	TTL time.Duration

	// Enabled turns deduplication on. Default: false, handlers are idempotent on their own.
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: false,
	}
}
