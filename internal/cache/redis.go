package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"MarketStructure/internal/model"
)

// Redis is a BarCache backed by a Redis server.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedis connects to addr.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), ttl: ttl}
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]model.Bar, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var bars []model.Bar
	if err := json.Unmarshal([]byte(val), &bars); err != nil {
		return nil, false, fmt.Errorf("decode cached bars %s: %w", key, err)
	}
	return bars, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, bars []model.Bar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, string(data), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
