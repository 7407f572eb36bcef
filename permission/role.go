package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a closed enumeration. The zero value is [RoleNone].
type Role uint8

const (
	// RoleNone marks an identity without any role.
	RoleNone Role = iota
	// RoleUser is the regular account role.
	RoleUser
	// RoleAdmin is the administrative role.
	RoleAdmin

	roleCount
)

// ErrUnknownRole is returned by ParseRole for names outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

var roleNames = [roleCount]string{
	RoleNone:  "",
	RoleUser:  "user",
	RoleAdmin: "admin",
}

// String returns the wire name of r. RoleNone is the empty string.
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Valid reports whether r is a member of the enumeration.
func (r Role) Valid() bool {
	return r < roleCount
}

// ParseRole maps a wire name to a [Role]. Surrounding whitespace is ignored
// and matching is case-sensitive.
func ParseRole(name string) (Role, error) {
	name = strings.TrimSpace(name)
	for r := RoleNone; r < roleCount; r++ {
		if roleNames[r] == name {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// MustParseRole is ParseRole for static route tables; it panics on an
// unknown name.
func MustParseRole(name string) Role {
	r, err := ParseRole(name)
	if err != nil {
		panic(err)
	}
	return r
}

// Roles returns every assignable role, excluding RoleNone.
func Roles() []Role {
	out := make([]Role, 0, roleCount-1)
	for r := RoleUser; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}
