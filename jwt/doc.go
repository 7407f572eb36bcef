// Package jwt issues and verifies the signed, expiring tokens used for both
// access and refresh credentials.
//
// Verification separates two failure classes: [ErrExpired] for a token whose
// signature is intact but whose expiry has passed, and [ErrInvalidSignature]
// for anything that cannot be trusted at all. Middleware depends on that split
// to decide whether a silent refresh is allowed.
package jwt
