// Package audit delivers client session events to pluggable sinks off the
// caller's goroutine.
//
// # Components
//
//   - [Sink] for event consumers (channel, JSON lines, zap logger, no-op).
//   - [Dispatcher], a buffered async relay that either drops or blocks when full.
//   - [Event], one login, logout, refresh, replay, or forced-logout record.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events exist and when
// they fire is decided by the root client.
//
// # What this package must NOT do
//
//   - Record token values. Events carry usernames and request ids only.
//   - Import goAuthClient or any sibling package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
