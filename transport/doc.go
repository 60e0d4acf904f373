// Package transport implements the authenticated request pipeline as an
// [http.RoundTripper].
//
// # Request lifecycle
//
// Each request moves through Unsent, Attached, Sent, and Settled. A 401 on a
// request that is neither skip-auth nor already retried moves it to Retried:
// the pipeline asks its [Refresher] for a new access token and replays the
// original request exactly once. When the refresh fails the pipeline broadcasts
// a forced logout and settles with the refresh error.
//
// Requests whose context carries [WithSkipAuth] never get a bearer header and
// never take the retry path. Login, register, logout, and the refresh exchange
// itself use it.
//
// # What this package must NOT do
//
//   - Store tokens; it reads the current token per request through [TokenSource].
//   - Retry anything other than a single 401.
//   - Import refresh, session, or goAuthClient.
package transport
