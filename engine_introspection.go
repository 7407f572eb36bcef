package tokenauth

import (
	"context"

	internalflows "github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/session"
)

// ListSessions returns the live sessions of subjectID, oldest first. Only
// token hashes are exposed, never refresh tokens.
func (e *Engine) ListSessions(ctx context.Context, subjectID string) ([]SessionInfo, error) {
	sessions, err := internalflows.RunListSessions(ctx, subjectID, e.flows.Introspection)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionInfo(sess))
	}
	return out, nil
}

// LoginAttempts returns the failed-login count for email in the current
// throttle window. It is always 0 when throttling is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int, error) {
	return internalflows.RunLoginAttempts(ctx, email, e.flows.Introspection)
}

// Health pings the session store and the throttle backend.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	res := internalflows.RunHealth(ctx, e.flows.Introspection)
	return HealthStatus{
		SessionStoreAvailable: res.SessionStoreAvailable,
		RateLimiterAvailable:  res.RateLimiterAvailable,
		Latency:               res.Latency,
	}
}

// Healthy reports whether every backend answered.
func (h HealthStatus) Healthy() bool {
	return h.SessionStoreAvailable && h.RateLimiterAvailable
}

func toSessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		ID:        sess.ID,
		TokenHash: hashPrefix(sess.TokenHash),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}

const sessionHashPrefixLen = 12

func hashPrefix(h string) string {
	if len(h) > sessionHashPrefixLen {
		return h[:sessionHashPrefixLen]
	}
	return h
}
