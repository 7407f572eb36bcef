package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/session"
)

type IntrospectionSessionStore interface {
	ListBySubject(ctx context.Context, subjectID string) ([]*session.Session, error)
	Ping(ctx context.Context) error
}

type IntrospectionRateLimiter interface {
	LoginAttempts(ctx context.Context, email string) (int, error)
	Ping(ctx context.Context) error
}

type IntrospectionDeps struct {
	SessionStore IntrospectionSessionStore
	// RateLimiter is nil when login throttling is disabled.
	RateLimiter       IntrospectionRateLimiter
	Now               func() time.Time
	EmptySubject      error
	EngineNotReadyErr error
}

// HealthResult reports backend availability.
type HealthResult struct {
	SessionStoreAvailable bool
	RateLimiterAvailable  bool
	Latency               time.Duration
}

func RunListSessions(ctx context.Context, subjectID string, deps IntrospectionDeps) ([]*session.Session, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if subjectID == "" {
		return nil, deps.EmptySubject
	}
	return deps.SessionStore.ListBySubject(ctx, subjectID)
}

func RunLoginAttempts(ctx context.Context, email string, deps IntrospectionDeps) (int, error) {
	if deps.RateLimiter == nil {
		return 0, nil
	}
	return deps.RateLimiter.LoginAttempts(ctx, email)
}

// RunHealth pings the session store and, when configured, the rate limiter.
// A disabled rate limiter reports available.
func RunHealth(ctx context.Context, deps IntrospectionDeps) HealthResult {
	start := deps.Now()
	res := HealthResult{RateLimiterAvailable: true}
	if deps.SessionStore != nil {
		res.SessionStoreAvailable = deps.SessionStore.Ping(ctx) == nil
	}
	if deps.RateLimiter != nil {
		res.RateLimiterAvailable = deps.RateLimiter.Ping(ctx) == nil
	}
	res.Latency = deps.Now().Sub(start)
	return res
}
