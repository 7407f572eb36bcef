package tokenauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	internalflows "github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/session"
)

// Engine issues and verifies tokens and manages sessions. Build one with
// [New]; it is safe for concurrent use.
//
// Access tokens are stateless: Logout and LogoutAll stop further refreshes
// immediately, but access tokens already issued stay valid until they
// expire.
type Engine struct {
	config       Config
	sessionStore session.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash password.Hasher
	jwtManager   *jwt.Manager
	userProvider UserProvider
	logger       *slog.Logger
	now          func() time.Time
	flows        internalflows.Deps
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

// Login authenticates email and password, creates a session and returns a
// fresh token pair with the subject summary.
//
// Unknown emails fail with ErrUserNotFound and wrong passwords with
// ErrInvalidCredentials; transports must not tell the two apart. Throttled
// attempts fail with ErrLoginRateLimited.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	res := internalflows.RunLogin(ctx, email, password, e.flows.Login)

	switch res.Failure {
	case internalflows.LoginFailureNone:
	case internalflows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, nil)
		return nil, ErrLoginRateLimited
	default:
		err := e.loginError(res)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, "", err, func() map[string]string {
			meta := map[string]string{"reason": res.Failure.Reason()}
			if res.ThrottleTripped {
				meta["throttle"] = "tripped"
			}
			return meta
		})
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	var loginMeta func() map[string]string
	if res.RehashNeeded {
		e.logger.Info("tokenauth: stored password hash below current cost", "subject_id", res.User.ID)
		loginMeta = func() map[string]string { return map[string]string{"rehash": "needed"} }
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.ID, res.SessionID, nil, loginMeta)

	return &LoginResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Subject: SubjectSummary{
			ID:       res.User.ID,
			Username: res.User.Username,
			Email:    res.User.Email,
		},
	}, nil
}

func (e *Engine) loginError(res internalflows.LoginResult) error {
	switch res.Failure {
	case internalflows.LoginFailureUserNotFound:
		return ErrUserNotFound
	case internalflows.LoginFailureBadPassword, internalflows.LoginFailureUnusableRecord:
		if res.Err != nil {
			e.warn("tokenauth: unusable subject record", "subject_id", res.User.ID, "error", res.Err)
		}
		return ErrInvalidCredentials
	case internalflows.LoginFailureRateUnavailable:
		return fmt.Errorf("login throttle: %w", res.Err)
	case internalflows.LoginFailureLookup:
		return fmt.Errorf("user lookup: %w", res.Err)
	case internalflows.LoginFailureIssue:
		return fmt.Errorf("issue tokens: %w", res.Err)
	default:
		return res.Err
	}
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token is not rotated and stays valid until it expires or its
// session is deleted.
//
// Tokens that fail verification or are not refresh tokens fail with
// ErrTokenInvalid; a verified token without a live session fails with
// ErrSessionRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	res := internalflows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	switch res.Failure {
	case internalflows.RefreshFailureNone:
	case internalflows.RefreshFailureVerify, internalflows.RefreshFailureWrongType:
		err := fmt.Errorf("%w: %v", ErrTokenInvalid, res.Err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, "", err, reasonMeta(res.Failure.Reason()))
		return "", err
	case internalflows.RefreshFailureSessionNotFound, internalflows.RefreshFailureSubjectMismatch:
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRevoked, false, res.SubjectID, res.SessionID, ErrSessionRevoked, reasonMeta(res.Failure.Reason()))
		return "", ErrSessionRevoked
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, res.SessionID, res.Err, reasonMeta(res.Failure.Reason()))
		return "", res.Err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.SubjectID, res.SessionID, nil, nil)
	return res.AccessToken, nil
}

// Logout deletes the session bound to refreshToken. Unknown, expired and
// empty tokens succeed, so repeated calls are safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	res := internalflows.RunLogout(ctx, refreshToken, e.flows.Logout)
	if res.Err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, res.SubjectID, res.SessionID, res.Err, nil)
		return res.Err
	}

	e.metricInc(MetricLogout)
	if res.Removed > 0 {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, true, res.SubjectID, res.SessionID, nil, nil)
	return nil
}

// LogoutAll deletes every session of subjectID. Callers must take
// subjectID from a verified Identity, never from client input.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	res := internalflows.RunLogoutAll(ctx, subjectID, e.flows.Logout)
	if res.Err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, subjectID, "", res.Err, nil)
		return res.Err
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < res.Removed; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(res.Removed)}
	})
	return nil
}

// Verify resolves an access token into an Identity without touching any
// store.
//
// An expired but authentic token returns its stale Identity together with
// ErrTokenExpired so middleware can attempt a refresh for the same subject.
// Every other failure returns nil and an error wrapping ErrInvalidSignature.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	start := time.Now()
	res := internalflows.RunVerify(accessToken, e.flows.Verify)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case internalflows.VerifyFailureNone:
	case internalflows.VerifyFailureExpired:
		e.metricInc(MetricVerifyExpired)
		return identityFromClaims(res), ErrTokenExpired
	default:
		e.metricInc(MetricVerifyInvalid)
		return nil, res.Err
	}

	return identityFromClaims(res), nil
}

func identityFromClaims(res internalflows.VerifyResult) *Identity {
	id := &Identity{
		SubjectID: res.Claims.Subject,
		Email:     res.Claims.Email,
		Role:      res.Role,
		TokenID:   res.Claims.ID,
	}
	if res.Claims.IssuedAt != nil {
		id.IssuedAt = res.Claims.IssuedAt.Time
	}
	if res.Claims.ExpiresAt != nil {
		id.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return id
}

func reasonMeta(reason string) func() map[string]string {
	if reason == "" {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
