package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/session"
)

type LogoutSessionStore interface {
	Find(ctx context.Context, refreshToken string) (*session.Session, error)
	Delete(ctx context.Context, refreshToken string) error
	ListBySubject(ctx context.Context, subjectID string) ([]*session.Session, error)
	DeleteAllForSubject(ctx context.Context, subjectID string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	SessionStore    LogoutSessionStore
	SessionNotFound error
	EmptySubject    error
}

// LogoutResult reports what a logout removed. SubjectID and SessionID are
// empty when the token had no live session.
type LogoutResult struct {
	Err       error
	SubjectID string
	SessionID string
	Removed   int
}

// RunLogout deletes the session of refreshToken. Unknown or empty tokens
// succeed without touching the store.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	if refreshToken == "" {
		return LogoutResult{}
	}

	var res LogoutResult
	sess, err := deps.SessionStore.Find(ctx, refreshToken)
	switch {
	case err == nil:
		res.SubjectID = sess.SubjectID
		res.SessionID = sess.ID
		res.Removed = 1
	case errors.Is(err, deps.SessionNotFound):
	default:
		return LogoutResult{Err: err}
	}

	if err := deps.SessionStore.Delete(ctx, refreshToken); err != nil {
		return LogoutResult{Err: err, SubjectID: res.SubjectID, SessionID: res.SessionID}
	}
	return res
}

// RunLogoutAll deletes every session of subjectID.
func RunLogoutAll(ctx context.Context, subjectID string, deps LogoutDeps) LogoutResult {
	if subjectID == "" {
		return LogoutResult{Err: deps.EmptySubject}
	}

	sessions, err := deps.SessionStore.ListBySubject(ctx, subjectID)
	if err != nil {
		return LogoutResult{Err: err, SubjectID: subjectID}
	}
	if err := deps.SessionStore.DeleteAllForSubject(ctx, subjectID); err != nil {
		return LogoutResult{Err: err, SubjectID: subjectID}
	}
	return LogoutResult{SubjectID: subjectID, Removed: len(sessions)}
}
