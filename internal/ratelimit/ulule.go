package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// UluleLimiter is a fixed window Allower on top of a ulule/limiter store.
type UluleLimiter struct {
	Store limiter.Store
}

var _ Allower = UluleLimiter{}

// NewUluleRedis stores counters in Redis under prefix.
func NewUluleRedis(client *redis.Client, prefix string) (UluleLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return UluleLimiter{}, err
	}
	return UluleLimiter{Store: store}, nil
}

// NewUluleMemory keeps counters in process, for single-instance runs without Redis.
func NewUluleMemory(prefix string) UluleLimiter {
	return UluleLimiter{Store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: time.Minute,
	})}
}

// Allow implements Allower.
func (u UluleLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if u.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := u.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
