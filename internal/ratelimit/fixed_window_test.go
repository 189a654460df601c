package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	ctx := context.Background()

	first := limiter.Allow(ctx, "login:ip-1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request: %+v", first)
	}
	if !limiter.Allow(ctx, "login:ip-1").Allowed {
		t.Fatalf("second request should pass")
	}
	third := limiter.Allow(ctx, "login:ip-1")
	if third.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if third.RetryAfter <= 0 || third.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v", third.RetryAfter)
	}
	if !limiter.Allow(ctx, "login:ip-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterNextWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Allow(ctx, "k").Allowed || limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("expected one request per window")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "k").Allowed {
		t.Fatalf("next window should reset the quota")
	}
	if keys := mr.Keys(); len(keys) != 2 || keys[0][:len(DefaultPrefix)] != DefaultPrefix {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow(context.Background(), "ip-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedis(t *testing.T) {
	if limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected constructor error for nil client")
	}
	mr := miniredis.RunT(t)
	if _, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "", 0, time.Second); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
}
