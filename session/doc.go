// Package session provides durable storage for refresh-token sessions.
//
// A [Store] maps the SHA-256 hash of a refresh token to its [Session] and keeps
// a secondary index by subject for enumeration and bulk revocation. Two
// implementations ship with the package: [RedisStore] and [PostgresStore].
//
// # Architecture boundaries
//
// This package owns the [Store] contract and the [Session] model. It does NOT
// parse or verify tokens, evaluate roles, or decide whether a refresh is
// allowed; those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import tokenauth, jwt, or permission (no upward imports).
//   - Persist raw refresh tokens.
//   - Treat a missing record on Delete as an error.
package session
