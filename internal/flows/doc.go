// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunVerify, RunLogout and the
// introspection helpers) accepts a typed dependency struct and returns a
// result that classifies the outcome. The root package maps those outcomes
// to sentinel errors, metrics and audit events, so the flows stay testable
// with plain fakes.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root tokenauth package.
//   - Talk to Redis or Postgres directly; all I/O goes through the
//     dependency interfaces.
package flows
