package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when no live session matches a refresh token.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps failures of the underlying storage backend.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidSession is returned by Create for unusable input.
	ErrInvalidSession = errors.New("invalid session")
)

// Store is the persistence contract used by the Engine. Implementations must
// make Create, Find, Touch and Delete atomic per refresh-token key.
type Store interface {
	// Create inserts a new session. Existing sessions of the subject are untouched.
	Create(ctx context.Context, subjectID, refreshToken string, expiresAt time.Time) (*Session, error)
	// Find returns the live session for refreshToken or ErrNotFound.
	Find(ctx context.Context, refreshToken string) (*Session, error)
	// ListBySubject returns live sessions ordered oldest first.
	ListBySubject(ctx context.Context, subjectID string) ([]*Session, error)
	// Touch sets UpdatedAt on a live session or returns ErrNotFound.
	Touch(ctx context.Context, refreshToken string, at time.Time) error
	// Delete removes the session for refreshToken. Missing records are not an error.
	Delete(ctx context.Context, refreshToken string) error
	// DeleteAllForSubject removes every session of subjectID. Idempotent.
	DeleteAllForSubject(ctx context.Context, subjectID string) error
	// Ping checks backend availability.
	Ping(ctx context.Context) error
}

// HashToken returns the hex SHA-256 digest used as the storage key for a
// refresh token.
func HashToken(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

// newSession builds the record shared by every Store implementation.
func newSession(subjectID, refreshToken string, now, expiresAt time.Time) (*Session, error) {
	if subjectID == "" || refreshToken == "" {
		return nil, ErrInvalidSession
	}
	if !expiresAt.After(now) {
		return nil, ErrInvalidSession
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id.String(),
		TokenHash: HashToken(refreshToken),
		SubjectID: subjectID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}
