package tokenauth

import (
	"context"
	"log/slog"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshInvalid   = "refresh_invalid"
	auditEventRefreshRevoked   = "refresh_revoked"
	auditEventLogoutSession    = "logout_session"
	auditEventLogoutAll        = "logout_all"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = KindOf(err).String()
	}

	e.audit.Emit(ctx, event)
}

// auditDropped is the dispatcher's drop hook. A full buffer under DropIfFull
// is expected load shedding and stays at debug level.
func (e *Engine) auditDropped(event AuditEvent, reason internalaudit.DropReason) {
	level := slog.LevelWarn
	if reason == internalaudit.DropBufferFull {
		level = slog.LevelDebug
	}
	e.logger.Log(context.Background(), level, "tokenauth: audit event dropped",
		"event_type", event.EventType,
		"subject_id", event.SubjectID,
		"reason", string(reason),
	)
}

// AuditDropped returns how many audit events never reached the sink: buffer
// full, caller context done, emitted after Close, or a panicking sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
