package password

import "errors"

// DefaultMaxPasswordBytes caps password input to bound hashing cost.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned by Hash for an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when input exceeds the configured maximum.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every failure to read a stored hash.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher hashes passwords and checks candidates against stored hashes.
// Verify returns (false, nil) for a wrong password and a non-nil error only
// when the stored hash is unusable or the input is rejected outright.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
}

// Upgrader is implemented by hashers that can tell when a stored hash was
// made with weaker parameters than they would use today.
type Upgrader interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

var (
	_ Hasher   = (*Argon2)(nil)
	_ Hasher   = (*Bcrypt)(nil)
	_ Upgrader = (*Argon2)(nil)
	_ Upgrader = (*Bcrypt)(nil)
)

func checkLength(password string, max int) error {
	if max <= 0 {
		max = DefaultMaxPasswordBytes
	}
	if len(password) > max {
		return ErrPasswordTooLong
	}
	return nil
}
