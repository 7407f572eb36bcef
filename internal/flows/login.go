package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/MrEthical07/tokenauth/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureRateUnavailable
	LoginFailureUserNotFound
	LoginFailureLookup
	LoginFailureBadPassword
	LoginFailureUnusableRecord
	LoginFailureIssue
	LoginFailureSession
)

// Reason is the short label recorded in audit metadata.
func (k LoginFailureKind) Reason() string {
	switch k {
	case LoginFailureRateLimited:
		return "rate_limited"
	case LoginFailureRateUnavailable:
		return "rate_limiter_unavailable"
	case LoginFailureUserNotFound:
		return "user_not_found"
	case LoginFailureLookup:
		return "user_lookup_failed"
	case LoginFailureBadPassword:
		return "bad_password"
	case LoginFailureUnusableRecord:
		return "unusable_record"
	case LoginFailureIssue:
		return "issue_failed"
	case LoginFailureSession:
		return "session_create_failed"
	default:
		return ""
	}
}

// LoginUser is the flow-local view of a subject record.
type LoginUser struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
}

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	// ThrottleTripped is set when this failure spent the last attempt.
	ThrottleTripped bool
	// RehashNeeded is set on success when the stored hash is weaker than
	// the hasher's current parameters.
	RehashNeeded bool

	User         LoginUser
	Role         permission.Role
	SessionID    string
	AccessToken  string
	RefreshToken string
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email string) error
}

type LoginSessionStore interface {
	Create(ctx context.Context, subjectID, refreshToken string, expiresAt time.Time) (*session.Session, error)
}

// LoginDeps captures login dependencies. RateLimiter may be nil when
// throttling is disabled.
type LoginDeps struct {
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	GetUserByEmail      func(context.Context, string) (LoginUser, error)
	VerifyPassword      func(password, encodedHash string) (bool, error)
	// NeedsRehash is optional.
	NeedsRehash func(encodedHash string) (bool, error)
	// DummyHash is verified against when the email is unknown so both
	// failure paths spend the same hashing time.
	DummyHash    string
	IssueToken   func(jwt.Claims, time.Duration) (string, error)
	RateLimiter  LoginRateLimiter
	SessionStore LoginSessionStore
	UserNotFound error
	Warn         func(string, ...any)
}

// RunLogin authenticates email/password and creates a session.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	email = strings.TrimSpace(email)
	ip := deps.ClientIPFromContext(ctx)

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			return LoginResult{Failure: LoginFailureRateUnavailable, Err: err}
		}
	}

	if email == "" || password == "" {
		return recordLoginFailure(ctx, email, ip, LoginResult{Failure: LoginFailureBadPassword}, deps)
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.UserNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			return recordLoginFailure(ctx, email, ip, LoginResult{Failure: LoginFailureUserNotFound, Err: err}, deps)
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return recordLoginFailure(ctx, email, ip, LoginResult{Failure: LoginFailureUnusableRecord, Err: err, User: user}, deps)
	}
	if !ok {
		return recordLoginFailure(ctx, email, ip, LoginResult{Failure: LoginFailureBadPassword, User: user}, deps)
	}

	role, err := permission.ParseRole(user.Role)
	if err != nil || user.ID == "" {
		return LoginResult{Failure: LoginFailureUnusableRecord, Err: err, User: user}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, email); err != nil && deps.Warn != nil {
			deps.Warn("tokenauth: login throttle reset failed", "error", err)
		}
	}

	base := jwt.Claims{Email: user.Email, Role: role.String()}
	base.Subject = user.ID

	accessClaims := base
	accessClaims.Type = jwt.TypeAccess
	access, err := deps.IssueToken(accessClaims, deps.AccessTTL)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user}
	}

	refreshClaims := base
	refreshClaims.Type = jwt.TypeRefresh
	expiresAt := deps.Now().Add(deps.RefreshTTL)
	refresh, err := deps.IssueToken(refreshClaims, deps.RefreshTTL)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user}
	}

	sess, err := deps.SessionStore.Create(ctx, user.ID, refresh, expiresAt)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, User: user}
	}

	res := LoginResult{
		Failure:      LoginFailureNone,
		User:         user,
		Role:         role,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if deps.NeedsRehash != nil {
		stale, err := deps.NeedsRehash(user.PasswordHash)
		res.RehashNeeded = err == nil && stale
	}
	return res
}

func recordLoginFailure(ctx context.Context, email, ip string, res LoginResult, deps LoginDeps) LoginResult {
	if deps.RateLimiter == nil || email == "" {
		return res
	}
	if err := deps.RateLimiter.IncrementLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			res.ThrottleTripped = true
		} else if deps.Warn != nil {
			deps.Warn("tokenauth: login throttle increment failed", "error", err)
		}
	}
	return res
}
