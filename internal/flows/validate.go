package flows

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/permission"
)

// VerifyFailureKind classifies access-token verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureExpired
	VerifyFailureInvalid
)

// VerifyResult holds the decoded claims. On VerifyFailureExpired the claims
// are authentic but stale.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.Claims
	Role    permission.Role
}

// VerifyDeps captures access-token verification dependencies.
type VerifyDeps struct {
	VerifyToken func(string) (*jwt.Claims, error)
}

// RunVerify checks an access token. Refresh tokens, subjectless tokens and
// unknown roles are rejected as invalid even when their signature holds.
func RunVerify(token string, deps VerifyDeps) VerifyResult {
	claims, err := deps.VerifyToken(token)
	failure := VerifyFailureNone
	if err != nil {
		if !errors.Is(err, jwt.ErrExpired) || claims == nil {
			return VerifyResult{Failure: VerifyFailureInvalid, Err: err}
		}
		failure = VerifyFailureExpired
	}

	if claims.Type != jwt.TypeAccess {
		return VerifyResult{
			Failure: VerifyFailureInvalid,
			Err:     fmt.Errorf("%w: unexpected token type %q", jwt.ErrInvalidSignature, claims.Type),
		}
	}
	if claims.Subject == "" {
		return VerifyResult{
			Failure: VerifyFailureInvalid,
			Err:     fmt.Errorf("%w: missing subject", jwt.ErrInvalidSignature),
		}
	}
	role, roleErr := permission.ParseRole(claims.Role)
	if roleErr != nil {
		return VerifyResult{
			Failure: VerifyFailureInvalid,
			Err:     fmt.Errorf("%w: %v", jwt.ErrInvalidSignature, roleErr),
		}
	}

	return VerifyResult{Failure: failure, Err: err, Claims: claims, Role: role}
}
