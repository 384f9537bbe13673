package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tasca/payment-gateway/internal/port/output"
)

const (
	idempotencyPrefix = "payments:idempotency:"
	listPrefix        = "payments:reservation:"

	// claimedMarker holds a key while the gateway call is in progress
	claimedMarker = "-"
)

// RedisStore implements the idempotency and list cache ports on Redis
type RedisStore struct {
	rdb     *redis.Client
	listTTL time.Duration
}

var (
	_ output.IdempotencyStore = (*RedisStore)(nil)
	_ output.PaymentListCache = (*RedisStore)(nil)
)

// Connect opens a Redis client and pings it
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore creates a store; listTTL bounds how long a cached list may live
func NewRedisStore(rdb *redis.Client, listTTL time.Duration) *RedisStore {
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &RedisStore{rdb: rdb, listTTL: listTTL}
}

// Claim reserves key with SETNX
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyPrefix+key, claimedMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// Bind records the reference created under key
func (s *RedisStore) Bind(ctx context.Context, key, reference string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, idempotencyPrefix+key, reference, ttl).Err(); err != nil {
		return fmt.Errorf("failed to bind idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the bound reference; "" while unbound or still claimed
func (s *RedisStore) Lookup(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if v == claimedMarker {
		return "", nil
	}
	return v, nil
}

// Release forgets key
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Get returns a cached reservation list
func (s *RedisStore) Get(ctx context.Context, reservationID string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, listPrefix+reservationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set caches a reservation list
func (s *RedisStore) Set(ctx context.Context, reservationID string, payload []byte) error {
	return s.rdb.Set(ctx, listPrefix+reservationID, payload, s.listTTL).Err()
}

// Invalidate drops the cached list so dependent views refresh
func (s *RedisStore) Invalidate(ctx context.Context, reservationID string) error {
	return s.rdb.Del(ctx, listPrefix+reservationID).Err()
}
