// Package middleware guards HTTP routes on the local session held by a
// goAuthClient.Client.
//
// [RouteGuard] checks the session oracle on every request, clears stale
// tokens, and redirects to the login location with the original path in a
// next parameter. It also subscribes to the logout notifier so a forced logout
// is observed as it happens rather than on the next request.
//
// # Architecture boundaries
//
// This package translates the authenticated verdict into HTTP responses. It
// does NOT decide whether a token is valid; that belongs to the session oracle.
//
// # What this package must NOT do
//
//   - Decode tokens or read token values.
//   - Call the account API.
//   - Poll for logout; it is notified.
package middleware
