package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/gymflex/internal/application"
)

// DefaultRedisKeyPrefix namespaces refresh token keys.
const DefaultRedisKeyPrefix = "gymflex:refresh:"

// RedisRefreshStore keeps refresh tokens in Redis with a TTL equal to their
// remaining lifetime. Consume uses GETDEL so a token can be exchanged once.
type RedisRefreshStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ application.RefreshStore = (*RedisRefreshStore)(nil)

// NewRedisRefreshStore wraps client. An empty prefix uses DefaultRedisKeyPrefix.
func NewRedisRefreshStore(client *redis.Client, prefix string, now func() time.Time) *RedisRefreshStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRefreshStore{client: client, prefix: prefix, now: now}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Save records the token until expiresAt. Already expired tokens are not stored.
func (s *RedisRefreshStore) Save(ctx context.Context, id, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+id, userID, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Consume removes the token and returns its owner.
func (s *RedisRefreshStore) Consume(ctx context.Context, id string) (string, error) {
	userID, err := s.client.GetDel(ctx, s.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: refresh token", application.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	return userID, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisRefreshStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
