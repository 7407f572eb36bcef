// Package password hashes and verifies login passwords.
//
// Two algorithms are available behind the [Hasher] interface: [Argon2]
// (Argon2id, PHC string output) and [Bcrypt]. [Argon2] is the default; bcrypt
// exists for user tables that already store bcrypt hashes.
//
// PHC format produced by [Argon2]:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other tokenauth package.
//   - Log plaintext passwords.
package password
