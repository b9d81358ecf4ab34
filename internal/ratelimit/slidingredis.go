package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in a shared Redis.
const DefaultPrefix = "payform:rl:"

// Limiter is a sliding log limiter: every admitted request is a member of a
// Redis sorted set scored by its arrival time in microseconds. Refused
// requests are taken back out, so a client hammering the gate does not extend
// its own lockout.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

var _ Allower = Limiter{}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Limiter) key(key string) string {
	if l.Prefix == "" {
		return DefaultPrefix + key
	}
	return l.Prefix + key
}

// Allow records one request for key. reset is when the oldest request in the
// window ages out, i.e. the earliest moment a refused client can get in.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	redisKey := l.key(key)
	member := uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: sliding window: %w", err)
	}

	reset := now.Add(window)
	if first := oldest.Val(); len(first) > 0 {
		reset = time.UnixMicro(int64(first[0].Score)).Add(window)
	}
	current := int(count.Val())
	if current > max {
		if err := l.Client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, 0, reset, fmt.Errorf("ratelimit: release refused request: %w", err)
		}
		return false, 0, reset, nil
	}
	return true, max - current, reset, nil
}
