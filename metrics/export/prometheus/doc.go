// Package prometheus renders goAuthClient metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps a [goAuthClient.Client] and exposes an
// [http.Handler]. Counters are named authclient_*_total; the one histogram is
// authclient_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
