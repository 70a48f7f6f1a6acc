package persistence

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis stores payloads as plain strings. A positive ttl expires idle
// carts after ttl plus up to five minutes of jitter; zero keeps them forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client:  client,
		baseTTL: ttl,
	}
}

type Redis struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *Redis) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *Redis) Write(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, string(value), r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *Redis) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

var _ Cache = (*Redis)(nil)
