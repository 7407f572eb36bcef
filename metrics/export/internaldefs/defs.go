package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// AuditDroppedName counts audit events that never reached the sink.
const (
	AuditDroppedName = "tokenauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events that never reached the sink."
)

var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Successful login attempts."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Failed login attempts."},
	{ID: tokenauth.MetricLoginRateLimited, Name: "tokenauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Refresh attempts with an unusable token."},
	{ID: tokenauth.MetricRefreshRevoked, Name: "tokenauth_refresh_revoked_total", Help: "Refresh attempts for a revoked session."},
	{ID: tokenauth.MetricSessionCreated, Name: "tokenauth_session_created_total", Help: "Created sessions."},
	{ID: tokenauth.MetricSessionInvalidated, Name: "tokenauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Single-session logout operations."},
	{ID: tokenauth.MetricLogoutAll, Name: "tokenauth_logout_all_total", Help: "Logout-all operations."},
	{ID: tokenauth.MetricVerifyExpired, Name: "tokenauth_verify_expired_total", Help: "Access tokens rejected as expired."},
	{ID: tokenauth.MetricVerifyInvalid, Name: "tokenauth_verify_invalid_total", Help: "Access tokens rejected as invalid."},
}

var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricValidateLatency, Name: "tokenauth_validate_latency_seconds", Help: "Access-token verification latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra overflow bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names every bucket, overflow included, for
// exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
