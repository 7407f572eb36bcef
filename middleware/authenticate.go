package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
)

// Authenticator is the subset of *tokenauth.Engine the middleware needs.
type Authenticator interface {
	Verify(ctx context.Context, accessToken string) (*tokenauth.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Option customises [Authenticate].
type Option func(*options)

type options struct {
	headers  tokenauth.TransportConfig
	clientIP func(*http.Request) string
	onError  ErrorWriter
}

// WithTransport overrides the header names, usually with
// engine.Config().Transport. Empty fields keep their defaults.
func WithTransport(cfg tokenauth.TransportConfig) Option {
	return func(o *options) {
		if cfg.AuthorizationHeader != "" {
			o.headers.AuthorizationHeader = cfg.AuthorizationHeader
		}
		if cfg.RefreshHeader != "" {
			o.headers.RefreshHeader = cfg.RefreshHeader
		}
		if cfg.RenewedAccessHeader != "" {
			o.headers.RenewedAccessHeader = cfg.RenewedAccessHeader
		}
	}
}

// WithClientIP replaces the RemoteAddr based client IP resolution. Use it
// behind a trusted proxy.
func WithClientIP(fn func(*http.Request) string) Option {
	return func(o *options) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

// WithErrorWriter replaces [WriteError] for rejected requests.
func WithErrorWriter(fn ErrorWriter) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		headers:  tokenauth.DefaultConfig().Transport,
		clientIP: RemoteIP,
		onError:  WriteError,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Authenticate verifies the bearer access token and attaches the Identity to
// the request context.
//
// An expired access token is renewed silently when the refresh header holds
// a live refresh token for the same subject; the new access token is
// returned in the renewed-access header. Rejected requests never reach next.
func Authenticate(auth Authenticator, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := RequestContext(r, o.clientIP)

			if auth == nil {
				o.onError(w, r, tokenauth.KindUnavailable)
				return
			}

			token, ok := bearerToken(r.Header.Get(o.headers.AuthorizationHeader))
			if !ok {
				o.onError(w, r, tokenauth.KindUnauthenticated)
				return
			}

			id, err := auth.Verify(ctx, token)
			switch {
			case err == nil:
			case errors.Is(err, tokenauth.ErrTokenExpired) && id != nil:
				renewed, kind := silentRefresh(ctx, w, r, auth, id, o)
				if renewed == nil {
					o.onError(w, r, kind)
					return
				}
				id = renewed
			default:
				o.onError(w, r, tokenauth.KindUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(tokenauth.WithIdentity(ctx, id)))
		})
	}
}

func silentRefresh(ctx context.Context, w http.ResponseWriter, r *http.Request, auth Authenticator, stale *tokenauth.Identity, o options) (*tokenauth.Identity, tokenauth.ErrorKind) {
	refreshToken := strings.TrimSpace(r.Header.Get(o.headers.RefreshHeader))
	if refreshToken == "" {
		return nil, tokenauth.KindUnauthenticated
	}

	access, err := auth.Refresh(ctx, refreshToken)
	if err != nil {
		if tokenauth.KindOf(err) == tokenauth.KindUnavailable {
			return nil, tokenauth.KindUnavailable
		}
		return nil, tokenauth.KindForbidden
	}

	renewed, err := auth.Verify(ctx, access)
	if err != nil || renewed.SubjectID != stale.SubjectID {
		return nil, tokenauth.KindForbidden
	}

	w.Header().Set(o.headers.RenewedAccessHeader, access)
	return renewed, 0
}

// RequestContext returns r's context carrying the client IP and User-Agent
// used for throttling and audit records.
func RequestContext(r *http.Request, clientIP func(*http.Request) string) context.Context {
	if clientIP == nil {
		clientIP = RemoteIP
	}
	ctx := tokenauth.WithClientIP(r.Context(), clientIP(r))
	return tokenauth.WithUserAgent(ctx, r.UserAgent())
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
