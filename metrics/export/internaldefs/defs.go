package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// Source is what exporters read from; *goSession.Client satisfies it.
type Source interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	ObserverDropped() uint64
}

const (
	ObserverDroppedName = "gosession_observer_dropped_total"
	ObserverDroppedHelp = "Session events dropped by asynchronous observers."
)

var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goSession.MetricUnauthorized, Name: "gosession_unauthorized_total", Help: "Sessions cleared by a 401 response."},
	{ID: goSession.MetricRestoreSuccess, Name: "gosession_restore_success_total", Help: "Sessions restored from storage."},
	{ID: goSession.MetricRestoreExpired, Name: "gosession_restore_expired_total", Help: "Stored sessions discarded as expired."},
	{ID: goSession.MetricExternalChange, Name: "gosession_external_change_total", Help: "Session changes made by another process."},
	{ID: goSession.MetricValidateSuccess, Name: "gosession_validate_success_total", Help: "Successful token validations."},
	{ID: goSession.MetricValidateFailure, Name: "gosession_validate_failure_total", Help: "Failed token validations."},
	{ID: goSession.MetricPasswordChange, Name: "gosession_password_change_total", Help: "Password changes."},
	{ID: goSession.MetricPasswordResetRequest, Name: "gosession_password_reset_request_total", Help: "Password reset requests."},
	{ID: goSession.MetricPasswordResetConfirm, Name: "gosession_password_reset_confirm_total", Help: "Password reset confirmations."},
	{ID: goSession.MetricGuardAllowed, Name: "gosession_guard_allowed_total", Help: "Route guard decisions that allowed navigation."},
	{ID: goSession.MetricGuardDenied, Name: "gosession_guard_denied_total", Help: "Route guard decisions that denied navigation."},
	{ID: goSession.MetricNetworkError, Name: "gosession_network_error_total", Help: "Backend calls that failed before a response."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Backend round-trip latency of session operations."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last bucket is +Inf.
var HistogramUpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight snapshot buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
