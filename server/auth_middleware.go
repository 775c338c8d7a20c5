package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/policy"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the *identity.Record of the authenticated caller
const ContextKeyIdentity ContextKey = "identity"

// IdentityFromContext returns the caller's identity or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *identity.Record {
	rec, _ := ctx.Value(ContextKeyIdentity).(*identity.Record)
	return rec
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IdentityMiddleware attaches the identity behind a valid bearer token. A missing or
// invalid token leaves the request anonymous; RequirePolicy turns that into a 401.
func (s *Server) IdentityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next(w, r)
			return
		}
		rec, err := s.auth.Authenticate(r.Context(), raw)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("bearer token rejected")
			next(w, r)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, rec)))
	}
}

// RequirePolicy evaluates the named policy. Denials never reveal which requirement
// failed: unauthenticated callers get 401, everyone else 403 "forbidden".
func (s *Server) RequirePolicy(name string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := s.policies.Evaluate(r.Context(), name, policy.HTTPRequest{Request: r}, IdentityFromContext(r.Context()))
			if d.Allowed {
				next(w, r)
				return
			}
			if errors.Is(d.Err, identity.ErrUnauthenticated) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="logistics"`)
				writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
				return
			}
			writeError(w, http.StatusForbidden, "forbidden", nil)
		}
	}
}
