package shared

import (
	"context"
	"time"
)

// IdempotencyStore records identifiers that must only be acted on once.
// The engine uses it as the applied-plan ledger: the first caller to mark
// a plan wins the right to apply it, every later caller is refused.
type IdempotencyStore interface {
	// MarkProcessed marks an identifier as consumed with a TTL.
	// Returns true if the identifier was newly marked, false if it was
	// already consumed.
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether an identifier has already been consumed.
	IsProcessed(ctx context.Context, id string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for the applied-plan ledger
type IdempotencyConfig struct {
	// TTL is the time-to-live for consumed identifiers.
	// After this duration the same identifier can be used again.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether single-flight checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default ledger configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
