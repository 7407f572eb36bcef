// Package audit implements async event dispatching for login, refresh and
// logout outcomes.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, subject, session, IP, metadata.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import tokenauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
