// Package session answers "is the caller signed in" and carries the logout
// signal from the request pipeline to whoever guards the UI.
//
// # Architecture boundaries
//
// [Oracle] combines the token store with the expiry inspector and never touches
// the network. [LogoutNotifier] is an explicit subscription point that replaces
// a process-wide event bus: publishers call Broadcast, listeners Subscribe.
//
// # What this package must NOT do
//
//   - Cache authentication state between calls.
//   - Perform token refresh or any HTTP call.
package session
