package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/aoi-tiling/internal/cache/redisstore"
)

// Redis keeps the snapshot under a single key with no expiry.
type Redis struct {
	client *redisstore.Client
	key    string
}

func OpenRedis(ctx context.Context, addr, key string) (*Redis, error) {
	c, err := redisstore.New(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("open redis backend: %w", err)
	}
	return NewRedis(c, key), nil
}

func NewRedis(c *redisstore.Client, key string) *Redis {
	if key == "" {
		key = "tiling:rtree"
	}
	return &Redis{client: c, key: key}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key)
	if errors.Is(err, redisstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Redis) Save(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0)
}

func (r *Redis) Close() error { return r.client.Close() }
