package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// Postgres reads subjects from the users table created by the embedded
// migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// GetUserByEmail implements tokenauth.UserProvider. Email matching is
// case-insensitive.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (tokenauth.UserRecord, error) {
	var rec tokenauth.UserRecord
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, role
		FROM users
		WHERE lower(email) = lower($1)
	`, normalizeEmail(email)).Scan(
		&rec.ID,
		&rec.Email,
		&rec.Username,
		&rec.PasswordHash,
		&rec.Role,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokenauth.UserRecord{}, tokenauth.ErrUserNotFound
	}
	if err != nil {
		return tokenauth.UserRecord{}, fmt.Errorf("userstore: lookup: %w", err)
	}
	return rec, nil
}

// Put inserts rec.
func (p *Postgres) Put(ctx context.Context, rec tokenauth.UserRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Email, rec.Username, rec.PasswordHash, rec.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("userstore: insert: %w", err)
	}
	return nil
}

// Delete removes the subject with id. Missing rows are not an error.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("userstore: delete: %w", err)
	}
	return nil
}
