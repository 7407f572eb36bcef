// Package middleware exposes HTTP adapters for tokenauth.Engine: bearer
// authentication with silent refresh, and identity and role guards.
//
// # Middleware
//
//   - [Authenticate] verifies the access token, renews an expired one from
//     the refresh header, and attaches the Identity to the request context.
//   - [RequireIdentity] rejects requests without an Identity.
//   - [RequireRole] admits one exact role.
//
// Handlers read the identity back with tokenauth.IdentityFromContext.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.Verify and Engine.Refresh.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or any other store.
//   - Trust a subject id supplied by the client.
package middleware
