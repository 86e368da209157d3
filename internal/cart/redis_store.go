package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
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

func (r *RedisStore) GetGuestCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return r.get(ctx, guestCartKey(sessionID))
}

func (r *RedisStore) SaveGuestCart(ctx context.Context, sessionID string, cart *domain.Cart) error {
	return r.save(ctx, guestCartKey(sessionID), cart)
}

func (r *RedisStore) DeleteGuestCart(ctx context.Context, sessionID string) error {
	return r.delete(ctx, guestCartKey(sessionID))
}

func (r *RedisStore) GetUserCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.get(ctx, userCartKey(userID))
}

func (r *RedisStore) SaveUserCart(ctx context.Context, userID string, cart *domain.Cart) error {
	return r.save(ctx, userCartKey(userID), cart)
}

func (r *RedisStore) DeleteUserCart(ctx context.Context, userID string) error {
	return r.delete(ctx, userCartKey(userID))
}

func (r *RedisStore) get(ctx context.Context, key string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}
	return &cart, nil
}

func (r *RedisStore) save(ctx context.Context, key string, cart *domain.Cart) error {
	if err := validateItems(cart); err != nil {
		return err
	}

	cart.UpdatedAt = time.Now()
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, key, string(jsonCart), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func guestCartKey(sessionID string) string {
	return fmt.Sprintf("cart:guest:%s", sessionID)
}

func userCartKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}
