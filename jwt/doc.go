// Package jwt inspects access tokens on the client side. It decodes the claims
// segment of a three-part token to read its expiry and nothing else.
//
// # Architecture boundaries
//
// Tokens are opaque bearer strings to this module: the inspector never verifies
// signatures, issuers, or audiences. Signature checks belong to the API server.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Return errors from [Inspector.IsExpired]; uncertain input is expired.
//   - Import goAuthClient, tokenstore, or transport.
package jwt
