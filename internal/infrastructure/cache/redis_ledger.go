package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopops/automator/internal/domain/shared"
)

const defaultLedgerPrefix = "automator:ledger:"

// RedisLedger keeps consumed plan IDs in Redis so that several automator
// instances share one single-flight ledger.
type RedisLedger struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds the connection parameters for the ledger
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisLedger connects to Redis and verifies the connection
func NewRedisLedger(cfg RedisConfig) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisLedger{client: client, keyPrefix: defaultLedgerPrefix}, nil
}

// NewRedisLedgerWithClient wraps an existing client, sharing it with other
// components
func NewRedisLedgerWithClient(client *redis.Client, keyPrefix string) *RedisLedger {
	if keyPrefix == "" {
		keyPrefix = defaultLedgerPrefix
	}
	return &RedisLedger{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed consumes key for ttl using SETNX, so the first caller wins
// atomically across instances
func (s *RedisLedger) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark plan in ledger: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether key is currently held
func (s *RedisLedger) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis client
func (s *RedisLedger) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisLedger)(nil)
