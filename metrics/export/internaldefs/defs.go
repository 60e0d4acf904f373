package internaldefs

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram.
type HistogramDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goAuthClient.MetricLoginSuccess, Name: "authclient_login_success_total", Help: "Logins that stored a credential pair."},
	{ID: goAuthClient.MetricLoginFailure, Name: "authclient_login_failure_total", Help: "Rejected or failed logins."},
	{ID: goAuthClient.MetricRegisterSuccess, Name: "authclient_register_success_total", Help: "Accounts created."},
	{ID: goAuthClient.MetricRegisterFailure, Name: "authclient_register_failure_total", Help: "Failed registrations."},
	{ID: goAuthClient.MetricValidationRejected, Name: "authclient_validation_rejected_total", Help: "Forms rejected locally before any network call."},
	{ID: goAuthClient.MetricLogout, Name: "authclient_logout_total", Help: "Logouts."},
	{ID: goAuthClient.MetricLogoutServerFailure, Name: "authclient_logout_server_failure_total", Help: "Logouts the server did not acknowledge."},
	{ID: goAuthClient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Refreshes that produced an access token."},
	{ID: goAuthClient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Refreshes that ended the session."},
	{ID: goAuthClient.MetricReplay, Name: "authclient_replay_total", Help: "Requests replayed after a refresh."},
	{ID: goAuthClient.MetricForcedLogout, Name: "authclient_forced_logout_total", Help: "Logout broadcasts caused by refresh failure."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAuthClient.MetricRequestLatency, Name: "authclient_request_latency_seconds", Help: "Account API call latency including refresh and replay."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument name suffixes.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
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
