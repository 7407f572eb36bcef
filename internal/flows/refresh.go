package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureWrongType
	RefreshFailureSessionNotFound
	RefreshFailureSubjectMismatch
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// Reason is the short label recorded in audit metadata.
func (k RefreshFailureKind) Reason() string {
	switch k {
	case RefreshFailureVerify:
		return "verify_failed"
	case RefreshFailureWrongType:
		return "wrong_token_type"
	case RefreshFailureSessionNotFound:
		return "session_not_found"
	case RefreshFailureSubjectMismatch:
		return "subject_mismatch"
	case RefreshFailureStore:
		return "store_failed"
	case RefreshFailureIssueAccess:
		return "issue_access_failed"
	default:
		return ""
	}
}

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	SubjectID   string
	SessionID   string
	AccessToken string
}

type RefreshSessionStore interface {
	Find(ctx context.Context, refreshToken string) (*session.Session, error)
	Touch(ctx context.Context, refreshToken string, at time.Time) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	AccessTTL       time.Duration
	Now             func() time.Time
	VerifyToken     func(string) (*jwt.Claims, error)
	IssueToken      func(jwt.Claims, time.Duration) (string, error)
	SessionStore    RefreshSessionStore
	SessionNotFound error
	Warn            func(string, ...any)
}

// RunRefresh mints a new access token for a live refresh token. The refresh
// token and its session are reused, only UpdatedAt moves.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	if claims.Type != jwt.TypeRefresh || claims.Subject == "" {
		return RefreshResult{
			Failure:   RefreshFailureWrongType,
			Err:       fmt.Errorf("unexpected token type %q", claims.Type),
			SubjectID: claims.Subject,
		}
	}

	sess, err := deps.SessionStore.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, deps.SessionNotFound) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SubjectID: claims.Subject}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: claims.Subject}
	}
	if sess.SubjectID != claims.Subject {
		return RefreshResult{
			Failure:   RefreshFailureSubjectMismatch,
			Err:       errors.New("session subject does not match token subject"),
			SubjectID: claims.Subject,
			SessionID: sess.ID,
		}
	}

	if err := deps.SessionStore.Touch(ctx, refreshToken, deps.Now()); err != nil {
		if errors.Is(err, deps.SessionNotFound) {
			// Deleted between Find and Touch: a logout won the race.
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SubjectID: sess.SubjectID, SessionID: sess.ID}
		}
		if deps.Warn != nil {
			deps.Warn("tokenauth: session touch failed", "session_id", sess.ID, "error", err)
		}
	}

	accessClaims := jwt.Claims{Email: claims.Email, Role: claims.Role, Type: jwt.TypeAccess}
	accessClaims.Subject = claims.Subject
	access, err := deps.IssueToken(accessClaims, deps.AccessTTL)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SubjectID: sess.SubjectID, SessionID: sess.ID}
	}

	return RefreshResult{
		Failure:     RefreshFailureNone,
		SubjectID:   sess.SubjectID,
		SessionID:   sess.ID,
		AccessToken: access,
	}
}
