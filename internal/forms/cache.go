package forms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedResolver keeps resolved forms in Redis as JSON. Lookups that fail,
// including ErrNotFound, are never cached. Redis errors fall through to Next.
type CachedResolver struct {
	Next   Resolver
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewCachedResolver wraps next with a Redis cache.
func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{Next: next, client: client, ttl: ttl, prefix: "form:", logger: logger}
}

func (c *CachedResolver) key(id string) string { return c.prefix + id }

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, id string) (Form, error) {
	if c.client == nil {
		return c.Next.Resolve(ctx, id)
	}
	var cached Form
	hit, err := c.getJSON(ctx, c.key(id), &cached)
	if err != nil {
		c.logger.Warn().Err(err).Str("form_id", id).Msg("form cache read failed")
	}
	if hit {
		return cached, nil
	}
	f, err := c.Next.Resolve(ctx, id)
	if err != nil {
		return Form{}, err
	}
	if err := c.setJSON(ctx, c.key(id), f); err != nil {
		c.logger.Warn().Err(err).Str("form_id", id).Msg("form cache write failed")
	}
	return f, nil
}

// Invalidate drops a cached form.
func (c *CachedResolver) Invalidate(ctx context.Context, id string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *CachedResolver) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CachedResolver) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
