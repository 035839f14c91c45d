package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/shared"
)

// LedgerFactory builds the applied-plan ledger, preferring Redis and
// optionally falling back to the in-memory form when Redis is unreachable
type LedgerFactory struct {
	redisConfig   RedisConfig
	logger        *zap.Logger
	allowFallback bool
}

// LedgerFactoryOption configures the factory
type LedgerFactoryOption func(*LedgerFactory)

// WithLogger sets the factory logger
func WithLogger(logger *zap.Logger) LedgerFactoryOption {
	return func(f *LedgerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls the fallback when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LedgerFactoryOption {
	return func(f *LedgerFactory) {
		f.allowFallback = allow
	}
}

// NewLedgerFactory creates a factory for the given Redis settings
func NewLedgerFactory(cfg RedisConfig, opts ...LedgerFactoryOption) *LedgerFactory {
	f := &LedgerFactory{
		redisConfig:   cfg,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the ledger. Redis first; in-memory only when fallback is
// allowed. A fallback ledger does not share state across instances, so two
// automators could each apply the same plan once.
func (f *LedgerFactory) Create() (shared.IdempotencyStore, error) {
	store, err := NewRedisLedger(f.redisConfig)
	if err == nil {
		f.logger.Info("using redis applied-plan ledger")
		return store, nil
	}

	if !f.allowFallback {
		return nil, fmt.Errorf("redis required for the applied-plan ledger: %w", err)
	}

	f.logger.Warn("redis unavailable, using in-memory applied-plan ledger", zap.Error(err))
	return NewInMemoryLedger(), nil
}
