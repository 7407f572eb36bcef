// Package userstore provides tokenauth.UserProvider implementations: an
// in-memory map for tests and demos, and a Postgres table reader.
//
// Both return tokenauth.ErrUserNotFound for unknown emails so the engine can
// tell a missing subject from a backend failure.
package userstore
