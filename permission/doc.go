// Package permission defines the closed set of roles understood by the
// authorization guard.
//
// Roles travel inside tokens as strings. [ParseRole] is the only way to turn
// such a string into a [Role]; unknown names are rejected instead of being
// compared loosely, so a typo in a route guard or a user record surfaces as an
// error rather than a silent denial.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import tokenauth, jwt, or session.
//   - Introduce role hierarchy. Comparison is exact.
package permission
