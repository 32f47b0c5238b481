package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds a client counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds a client histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricRequest, Name: "gosession_requests_total", Help: "Logical requests sent through the session transport."},
	{ID: goSession.MetricNetworkRetry, Name: "gosession_network_retries_total", Help: "Resubmissions after a network failure."},
	{ID: goSession.MetricRetriesExhausted, Name: "gosession_retries_exhausted_total", Help: "Requests that failed after every network retry."},
	{ID: goSession.MetricLogoutSynthetic, Name: "gosession_logout_synthetic_total", Help: "Logout calls answered locally because the server was unreachable."},
	{ID: goSession.MetricUnauthorized, Name: "gosession_unauthorized_total", Help: "401 responses seen by the session transport."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful refresh calls."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh calls."},
	{ID: goSession.MetricRefreshShared, Name: "gosession_refresh_shared_total", Help: "Callers that shared an in-flight refresh."},
	{ID: goSession.MetricReplay, Name: "gosession_replay_total", Help: "Requests replayed after a refresh."},
	{ID: goSession.MetricProactiveRefresh, Name: "gosession_proactive_refresh_total", Help: "Refreshes started by the background loop."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Forced session expiries."},
	{ID: goSession.MetricCSRFFetchSuccess, Name: "gosession_csrf_fetch_success_total", Help: "Explicit CSRF fetches that produced a token."},
	{ID: goSession.MetricCSRFFetchFailure, Name: "gosession_csrf_fetch_failure_total", Help: "Explicit CSRF fetches that failed."},
	{ID: goSession.MetricCSRFRejected, Name: "gosession_csrf_rejected_total", Help: "403 responses while CSRF protection is enabled."},
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that persisted credentials."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Explicit logouts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Logical request latency including retries and replays."},
}

// HistogramBounds are the upper bounds, in seconds, of the first seven buckets. The eighth
// bucket is +Inf.
var HistogramBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
