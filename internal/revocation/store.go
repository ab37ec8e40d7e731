package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:access:"

// RedisStore keeps revoked access tokens in Redis until they would have expired anyway.
// Keys hold a hash of the token, never the token itself.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store backed by client. A nil client yields a
// store whose operations are no-ops.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Revoke stores the token in the revocation list with TTL.
func (s *RedisStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, key(token), "1", ttl).Err()
}

// IsRevoked returns true when the token exists in the revocation list.
func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	exists, err := s.client.Exists(ctx, key(token)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
