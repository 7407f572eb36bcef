// Package rate implements Redis fixed-window counters for login throttling.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys:
//   - <prefix>:rl:e:<email hash> for failed logins per email
//   - <prefix>:rl:ip:<ip> for failed logins per client IP
//
// Emails are hashed before they become key material so Redis never holds a
// list of attempted addresses.
package rate
