// Package tokenstore owns the client's credential pair: the access token and the
// refresh token, persisted under the fixed keys [AccessTokenKey] and
// [RefreshTokenKey].
//
// # Backends
//
// A [Store] delegates durability to a [Backend]: [MemoryBackend] for the
// process lifetime, [FileBackend] for a single-user CLI, and [RedisBackend] when
// several processes share one login. Multi-key writes and deletes are a single
// backend operation so readers never observe half of an update.
//
// # What this package must NOT do
//
//   - Return errors from reads. A backend failure reads as "absent" so callers
//     fall back to unauthenticated.
//   - Cache token values outside the backend.
//   - Decode or validate token contents.
package tokenstore
