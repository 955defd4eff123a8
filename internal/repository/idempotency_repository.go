package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "intake:idem:"

// IdempotencyRepository reserves caller-supplied idempotency keys in Redis so
// retried approve/transfer calls cannot double-create students or
// double-append transfer records.
type IdempotencyRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyRepository constructs the repository. A nil client disables
// replay protection (every reservation succeeds).
func NewIdempotencyRepository(client *redis.Client, ttl time.Duration) *IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepository{client: client, ttl: ttl}
}

// Reserve claims the key. It returns false when the key was already used
// within the TTL window.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key string) (bool, error) {
	if r.client == nil || key == "" {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// Release frees a reserved key, used when the guarded operation failed and a
// retry should be allowed.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if r.client == nil || key == "" {
		return nil
	}
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}
