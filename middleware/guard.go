package middleware

import (
	"net/http"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/permission"
)

// RequireIdentity rejects requests that carry no Identity with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tokenauth.IdentityFromContext(r.Context()); !ok {
			WriteError(w, r, tokenauth.KindUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only identities whose role is exactly role. A missing
// identity is 401, any other role 403.
func RequireRole(role permission.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := tokenauth.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, r, tokenauth.KindUnauthenticated)
				return
			}
			if !id.HasRole(role) {
				WriteError(w, r, tokenauth.KindForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
