package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestUluleMemoryLimiter(t *testing.T) {
	limiter := NewUluleMemory("test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "k", time.Minute, 2)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != 1-i {
			t.Fatalf("unexpected remaining %d", remaining)
		}
	}
	allowed, _, reset, err := limiter.Allow(ctx, "k", time.Minute, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
	if !reset.After(time.Now()) {
		t.Fatalf("expected reset in the future, got %v", reset)
	}
}

func TestUluleRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	limiter, err := NewUluleRedis(client, "rl")
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	if allowed, _, _, err := limiter.Allow(ctx, "k", time.Minute, 1); err != nil || !allowed {
		t.Fatalf("expected first request allowed, got %v %v", allowed, err)
	}
	if allowed, _, _, err := limiter.Allow(ctx, "k", time.Minute, 1); err != nil || allowed {
		t.Fatalf("expected second request rejected, got %v %v", allowed, err)
	}
}

func TestUluleLimiterDisabled(t *testing.T) {
	allowed, remaining, _, err := UluleLimiter{}.Allow(context.Background(), "k", time.Minute, 3)
	if err != nil || !allowed || remaining != 3 {
		t.Fatalf("expected pass-through, got %v %d %v", allowed, remaining, err)
	}
}
