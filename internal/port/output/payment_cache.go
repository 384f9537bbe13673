package output

import (
	"context"
	"time"
)

// IdempotencyStore binds client idempotency keys to session references
type IdempotencyStore interface {
	// Claim reserves key; it returns false when the key is already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Bind records the reference created under a claimed key
	Bind(ctx context.Context, key, reference string, ttl time.Duration) error
	// Lookup returns the bound reference, or "" when the key is unbound
	Lookup(ctx context.Context, key string) (string, error)
	// Release forgets key after a failed attempt
	Release(ctx context.Context, key string) error
}

// PaymentListCache caches serialized per-reservation payment lists
type PaymentListCache interface {
	Get(ctx context.Context, reservationID string) ([]byte, bool, error)
	Set(ctx context.Context, reservationID string, payload []byte) error
	Invalidate(ctx context.Context, reservationID string) error
}
