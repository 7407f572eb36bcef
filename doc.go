// Package tokenauth provides a token authentication and session engine:
// short-lived JWT access tokens, longer-lived refresh tokens bound to
// server-side sessions, and a two-role authorization model.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy ([ErrorKind], [KindOf], [HTTPStatus]) and value types
// such as [Identity] and [SessionInfo]. Flow orchestration, rate limiting and
// audit dispatch live under internal/ and are never exported.
//
// The session backends live in the session package, password hashing in
// password and the token codec in jwt. HTTP adapters live in middleware and
// httpapi.
//
// # What this package must NOT do
//
//   - Expose Redis clients or session encoding details in its public API.
//   - Put refresh tokens, password hashes or passwords into audit events or
//     logs.
//   - Import any sub-package that re-imports tokenauth.
//
// # Performance contract
//
// Verify is the hot path. It never touches a store or the [UserProvider].
// Refresh costs one verify plus two session round-trips; Login is dominated
// by the password hash.
package tokenauth
