package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/google/uuid"
)

var (
	// ErrDuplicateEmail is returned when a record with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidRecord is returned for records without id, email or hash.
	ErrInvalidRecord = errors.New("invalid user record")
)

// Memory is an in-process tokenauth.UserProvider keyed by lower-cased
// email. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	byEmail map[string]tokenauth.UserRecord
}

// NewMemory returns an empty provider.
func NewMemory() *Memory {
	return &Memory{byEmail: make(map[string]tokenauth.UserRecord)}
}

// Put stores rec, rejecting a second record with the same email.
func (m *Memory) Put(rec tokenauth.UserRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	key := normalizeEmail(rec.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	m.byEmail[key] = rec
	return nil
}

// Register hashes plain with h and stores a new record with a fresh id.
func (m *Memory) Register(h password.Hasher, email, username, plain string, role permission.Role) (tokenauth.UserRecord, error) {
	rec, err := NewRecord(h, email, username, plain, role)
	if err != nil {
		return tokenauth.UserRecord{}, err
	}
	if err := m.Put(rec); err != nil {
		return tokenauth.UserRecord{}, err
	}
	return rec, nil
}

// GetUserByEmail implements tokenauth.UserProvider.
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (tokenauth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return tokenauth.UserRecord{}, err
	}

	m.mu.RLock()
	rec, ok := m.byEmail[normalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return tokenauth.UserRecord{}, tokenauth.ErrUserNotFound
	}
	return rec, nil
}

// NewRecord builds a record with a random UUID and a hash of plain.
func NewRecord(h password.Hasher, email, username, plain string, role permission.Role) (tokenauth.UserRecord, error) {
	if h == nil {
		return tokenauth.UserRecord{}, errors.New("userstore: nil hasher")
	}
	hash, err := h.Hash(plain)
	if err != nil {
		return tokenauth.UserRecord{}, fmt.Errorf("userstore: hash password: %w", err)
	}
	return tokenauth.UserRecord{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		Username:     username,
		PasswordHash: hash,
		Role:         role.String(),
	}, nil
}

func validateRecord(rec tokenauth.UserRecord) error {
	if rec.ID == "" || strings.TrimSpace(rec.Email) == "" || rec.PasswordHash == "" {
		return ErrInvalidRecord
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
