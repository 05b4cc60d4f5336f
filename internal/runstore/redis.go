package runstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisFingerprints keeps fingerprints in Redis so several hosts running the
// scheduler against the same workbook share one state
type RedisFingerprints struct {
	redis  *redis.Client
	prefix string
}

var _ Fingerprints = (*RedisFingerprints)(nil)

// NewRedisFingerprints returns a Redis-backed fingerprint store
func NewRedisFingerprints(client *redis.Client, prefix string) *RedisFingerprints {
	if prefix == "" {
		prefix = "asset-scheduler"
	}
	return &RedisFingerprints{redis: client, prefix: prefix}
}

func (r *RedisFingerprints) key(k string) string {
	return r.prefix + ":state:" + k
}

// Fingerprint returns the stored value, or "" when none is stored
func (r *RedisFingerprints) Fingerprint(ctx context.Context, key string) (string, error) {
	v, err := r.redis.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SaveFingerprint stores a value without expiry
func (r *RedisFingerprints) SaveFingerprint(ctx context.Context, key, value string) error {
	return r.redis.Set(ctx, r.key(key), value, 0).Err()
}
