// Package middleware provides the HTTP middleware chain: bearer auth and
// request logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"watrack/backend/internal/security"
	"watrack/backend/internal/server/respond"
)

const bearerPrefix = "bearer "

type contextKey int

const identityKey contextKey = iota

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Email  string
}

// WithIdentity returns ctx carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by Auth, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Auth validates the Bearer access token and attaches the caller identity to
// the request context. Requests without a valid token get 401.
func Auth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			userID, email, err := tokens.ValidateAccess(token)
			if err != nil {
				respond.Error(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: userID, Email: email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
