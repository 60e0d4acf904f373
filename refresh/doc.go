// Package refresh performs the refresh-token exchange: it trades the stored
// refresh token for a new access token at the API's refresh endpoint.
//
// # Recursion boundary
//
// The [Agent] talks to the network through its own [http.Client], which must be
// built on the base transport and never on the authenticating pipeline, so a
// 401 from the refresh endpoint cannot trigger another refresh.
//
// # Failure policy
//
// Every failure clears the token store before returning. Broadcasting the
// forced logout is the caller's job.
//
// # Concurrency
//
// With SingleFlight enabled, concurrent callers share one exchange. Without it
// each caller runs its own exchange, matching a plain interceptor.
package refresh
