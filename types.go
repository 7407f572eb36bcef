package tokenauth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/permission"
)

// UserProvider is the read-only view of the user database the engine needs.
// Implementations return ErrUserNotFound (possibly wrapped) when no subject
// has the given email. The engine never mutates subjects.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
}

// UserRecord is a subject as stored by the UserProvider.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	// Role is parsed with permission.ParseRole; an unknown value makes the
	// record unusable for login.
	Role string
}

// SubjectSummary is the non-sensitive part of a subject returned at login.
type SubjectSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Subject      SubjectSummary
}

// Identity is the verified caller resolved from an access token.
type Identity struct {
	SubjectID string
	Email     string
	Role      permission.Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the identity carries exactly role.
func (i *Identity) HasRole(role permission.Role) bool {
	return i != nil && i.Role == role
}

// SessionInfo describes one live session of a subject. TokenHash is a short
// prefix of the store key, enough to tell sessions apart in a listing.
type SessionInfo struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"tokenHash"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HealthStatus is returned by [Engine.Health].
type HealthStatus struct {
	SessionStoreAvailable bool
	RateLimiterAvailable  bool
	Latency               time.Duration
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events as structured log records.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink] logging through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
