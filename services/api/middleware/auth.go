package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// identityClaims is the token payload the auth service issues. The engine
// consumes it opaquely; membership roles are resolved per-workspace later.
type identityClaims struct {
	jwt.RegisteredClaims
	IsAdmin      bool `json:"adm,omitempty"`
	IsSuperAdmin bool `json:"sadm,omitempty"`
}

// Authenticate validates the bearer token and stashes the caller's Identity
// in the request context. Requests without a valid token get 401.
func Authenticate(secret string) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			var claims identityClaims
			token, err := jwt.ParseWithClaims(raw, &claims, keyFunc)
			if err != nil || !token.Valid || claims.Subject == "" {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			identity := domain.Identity{
				UserID:       claims.Subject,
				IsAdmin:      claims.IsAdmin,
				IsSuperAdmin: claims.IsSuperAdmin,
			}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), identityKey, identity),
			))
		})
	}
}

// IdentityFrom returns the authenticated caller stored by Authenticate.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

// WithIdentity injects an identity directly, for handler tests.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}
