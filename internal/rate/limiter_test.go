package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLoginBudgetPerEmail(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 3, LoginCooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := l.IncrementLogin(ctx, "A@x.com ", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected third failure to exhaust budget, got %v", err)
	}
	if err := l.CheckLogin(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected check to be limited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@x.com", ""); err != nil {
		t.Fatalf("other email must not be limited: %v", err)
	}

	mr.FastForward(time.Minute)
	if err := l.CheckLogin(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestResetLoginClearsEmailCounter(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 5, LoginCooldown: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@x.com", "")
	_ = l.IncrementLogin(ctx, "a@x.com", "")
	if n, _ := l.LoginAttempts(ctx, "a@x.com"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.ResetLogin(ctx, "a@x.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.LoginAttempts(ctx, "a@x.com"); n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d", n)
	}
}

func TestIPThrottleSpansEmails(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 2, LoginCooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@x.com", "10.0.0.1")
	if err := l.IncrementLogin(ctx, "b@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget to be exhausted, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP to be limited for any email, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@x.com", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must not be limited: %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 2, LoginCooldown: time.Minute})
	mr.Close()
	if err := l.CheckLogin(context.Background(), "a@x.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
