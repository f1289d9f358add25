// Package redis provides a Redis implementation of the OriginalPriceStore port.
//
// Sharing the store lets several engine processes pointed at the same fork
// agree on which value was the original. Values are stored as base-10 strings
// under prefix:network:protocol:asset.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// Compile-time check that OriginalPriceStore implements outbound.OriginalPriceStore
var _ outbound.OriginalPriceStore = (*OriginalPriceStore)(nil)

// Config holds Redis store configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL bounds how long an original survives. Zero keeps entries until reset.
	TTL time.Duration
	// KeyPrefix is prepended to all keys
	KeyPrefix string
}

// ConfigDefaults returns defaults for a local Redis.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "oracle-forge:original",
	}
}

// OriginalPriceStore is a Redis implementation of the outbound.OriginalPriceStore port.
type OriginalPriceStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewOriginalPriceStore creates a new Redis-backed store.
func NewOriginalPriceStore(cfg Config, logger *slog.Logger) (*OriginalPriceStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = ConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &OriginalPriceStore{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-original-store"),
	}, nil
}

// Ping checks the Redis connection.
func (s *OriginalPriceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *OriginalPriceStore) Close() error {
	return s.client.Close()
}

func (s *OriginalPriceStore) key(key string) string {
	return s.keyPrefix + ":" + key
}

func (s *OriginalPriceStore) Get(ctx context.Context, key string) (*big.Int, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get original price: %w", err)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false, fmt.Errorf("corrupt original price %q under %s", raw, key)
	}
	return v, true, nil
}

// PutIfAbsent uses SETNX so concurrent writers agree on the first value.
func (s *OriginalPriceStore) PutIfAbsent(ctx context.Context, key string, value *big.Int) (bool, error) {
	stored, err := s.client.SetNX(ctx, s.key(key), value.String(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store original price: %w", err)
	}
	if stored {
		s.logger.Debug("original price recorded", "key", key, "value", value.String())
	}
	return stored, nil
}

func (s *OriginalPriceStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete original price: %w", err)
	}
	return nil
}
