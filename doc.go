// Package goAuthClient is a client for a JWT-issuing account API. It keeps the
// credential pair in a pluggable token store, attaches the access token to
// outgoing requests, and on a 401 refreshes once and replays the request once.
// When the refresh fails the session is cleared and OnLogout subscribers run.
//
// A [Client] is built with [Builder] and is safe for concurrent use.
//
// # Architecture boundaries
//
// goAuthClient is the public surface: [Client], [Builder], [Config], the
// account request and result types, and error sentinels. The moving parts live
// in sub-packages that never import this one:
//
//   - tokenstore: the only owner of token values.
//   - jwt: decodes the exp claim without verifying signatures.
//   - session: the authenticated verdict and the logout notifier.
//   - refresh: the refresh-token exchange.
//   - transport: the http.RoundTripper that attaches, refreshes, and replays.
//
// # What this package must NOT do
//
//   - Cache token values outside the token store.
//   - Verify token signatures or hash passwords.
//   - Retry a request more than once, or retry anything but a 401.
package goAuthClient
