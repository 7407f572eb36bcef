package session

import "time"

// Session is the server-side record of one signed-in device for one subject.
// It is keyed by the hash of the refresh token it was created for; the raw
// token is never stored.
type Session struct {
	ID        string
	TokenHash string
	SubjectID string

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
