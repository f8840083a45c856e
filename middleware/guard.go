package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/storeauth"
)

type identityContextKey struct{}

// ErrorWriter renders an engine error as an HTTP response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// IdentityFromContext returns the identity stored by Identify.
func IdentityFromContext(ctx context.Context) (storeauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(storeauth.Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id storeauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Identify attaches the client address and the resolved identity to every
// request. Anonymous requests pass through. A stale cookie is expired on the
// response.
func Identify(engine *storeauth.Engine, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := storeauth.WithClientIP(r.Context(), ClientIP(r))
			ctx = storeauth.WithUserAgent(ctx, r.UserAgent())

			var value string
			if c, err := r.Cookie(engine.SessionCookieName()); err == nil {
				value = c.Value
			}

			id, err := engine.ResolveIdentity(ctx, value)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			if id.ClearCookie {
				ClearSessionCookie(w, engine)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

// Requirement inspects an authenticated identity and returns a storeauth
// error to reject the request.
type Requirement func(storeauth.Identity) error

// Guard requires an authenticated identity that satisfies every req.
func Guard(writeErr ErrorWriter, reqs ...Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || !id.Authenticated() {
				writeErr(w, r, storeauth.ErrUnauthorized)
				return
			}
			for _, req := range reqs {
				if err := req(id); err != nil {
					writeErr(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the remote host of r without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
