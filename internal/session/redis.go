package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *RedisStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	value, err := r.client.Get(ctx, sessionKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := r.client.Set(ctx, sessionKey(sessionID, key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Commit writes all credential keys in a single transactional pipeline.
// Either every key lands or none do.
func (r *RedisStore) Commit(ctx context.Context, sessionID string, creds Credentials) error {
	userJSON, err := json.Marshal(creds.User)
	if err != nil {
		return fmt.Errorf("marshal session user failed: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sessionID, KeyToken), creds.AccessToken, r.ttl)
	pipe.Set(ctx, sessionKey(sessionID, KeyAccessToken), creds.AccessToken, r.ttl)
	pipe.Set(ctx, sessionKey(sessionID, KeyRefreshToken), creds.RefreshToken, r.ttl)
	pipe.Set(ctx, sessionKey(sessionID, KeyUser), string(userJSON), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis commit failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	keys := []string{
		sessionKey(sessionID, KeyToken),
		sessionKey(sessionID, KeyAccessToken),
		sessionKey(sessionID, KeyRefreshToken),
		sessionKey(sessionID, KeyUser),
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID, key string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, key)
}
