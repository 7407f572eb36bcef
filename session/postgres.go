package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements [Store] on the auth_sessions table created by the
// embedded migrations in internal/db.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a Postgres-backed session store. now may be nil.
func NewPostgresStore(pool *pgxpool.Pool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, subjectID, refreshToken string, expiresAt time.Time) (*Session, error) {
	sess, err := newSession(subjectID, refreshToken, s.now().UTC(), expiresAt.UTC())
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO auth_sessions (
			token_hash, id, subject_id, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $4, $5
		)
	`, sess.TokenHash, sess.ID, sess.SubjectID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// Find loads the live session row for refreshToken.
func (s *PostgresStore) Find(ctx context.Context, refreshToken string) (*Session, error) {
	sess := &Session{TokenHash: HashToken(refreshToken)}
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject_id, created_at, updated_at, expires_at
		FROM auth_sessions
		WHERE token_hash = $1 AND expires_at > $2
	`, sess.TokenHash, s.now().UTC()).Scan(
		&sess.ID,
		&sess.SubjectID,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// ListBySubject returns live sessions of subjectID, oldest first.
func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_hash, id, subject_id, created_at, updated_at, expires_at
		FROM auth_sessions
		WHERE subject_id = $1 AND expires_at > $2
		ORDER BY created_at, id
	`, subjectID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.TokenHash,
			&sess.ID,
			&sess.SubjectID,
			&sess.CreatedAt,
			&sess.UpdatedAt,
			&sess.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sessions, nil
}

// Touch records at as the session's last use.
func (s *PostgresStore) Touch(ctx context.Context, refreshToken string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth_sessions
		SET updated_at = $2
		WHERE token_hash = $1 AND expires_at > $3
	`, HashToken(refreshToken), at.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session row for refreshToken, if any.
func (s *PostgresStore) Delete(ctx context.Context, refreshToken string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token_hash = $1`, HashToken(refreshToken)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAllForSubject removes every session row of subjectID in one statement.
func (s *PostgresStore) DeleteAllForSubject(ctx context.Context, subjectID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows past their expiry and reports how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database availability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
)
