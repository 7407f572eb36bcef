package tokenauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/session"
)

var (
	// ErrUnauthenticated is returned when no usable credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when an identity lacks the required role or a
	// silent refresh was refused.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned when the password does not match or
	// the stored subject record is unusable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by a UserProvider when no subject matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionRevoked is returned when a refresh token verifies but no live
	// session backs it.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrTokenInvalid is returned by Refresh for tokens that fail verification
	// or are not refresh tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrLoginRateLimited is returned when the login throttle is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned by Builder.Build when a collaborator is missing.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrTokenExpired aliases the codec's expiry error.
	ErrTokenExpired = jwt.ErrExpired
	// ErrInvalidSignature aliases the codec's verification error.
	ErrInvalidSignature = jwt.ErrInvalidSignature
	// ErrStoreUnavailable aliases the session store's backend error.
	ErrStoreUnavailable = session.ErrStoreUnavailable
)

// ErrorKind is the closed taxonomy that transports map to a response.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindInvalidCredentials
	KindNotFound
	KindRevoked
	KindInvalidToken
	KindRateLimited
	KindUnavailable
)

var kindNames = [...]string{
	KindInternal:           "internal",
	KindUnauthenticated:    "unauthenticated",
	KindForbidden:          "forbidden",
	KindInvalidCredentials: "invalid_credentials",
	KindNotFound:           "not_found",
	KindRevoked:            "revoked",
	KindInvalidToken:       "invalid_token",
	KindRateLimited:        "rate_limited",
	KindUnavailable:        "unavailable",
}

// String returns the wire name of k.
func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindInternal]
}

// KindOf classifies err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, rate.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, rate.ErrRedisUnavailable), errors.Is(err, ErrEngineNotReady):
		return KindUnavailable
	case errors.Is(err, ErrSessionRevoked):
		return KindRevoked
	case errors.Is(err, ErrTokenInvalid):
		return KindInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrInvalidSignature):
		return KindUnauthenticated
	default:
		return KindInternal
	}
}

// HTTPStatus maps k to a response status code.
func HTTPStatus(k ErrorKind) int {
	switch k {
	case KindUnauthenticated, KindInvalidCredentials, KindNotFound:
		return http.StatusUnauthorized
	case KindForbidden, KindRevoked, KindInvalidToken:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
