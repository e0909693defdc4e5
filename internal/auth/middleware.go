package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/estateway/gatekeeper/internal/models"
	pkghttp "github.com/estateway/gatekeeper/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// SessionChecker decides whether the session a token points at is
// still good. Implemented by the session service so every
// authenticated request re-checks the store, which is what makes
// remote revocation effective.
type SessionChecker interface {
	CheckSession(ctx context.Context, sessionID string) (*models.DeviceSession, error)
}

// SessionMiddleware parses the bearer session token, verifies the
// underlying session is active and unexpired, and injects the session
// into the request context.
func SessionMiddleware(tc *TokenCodec, checker SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tc.Parse(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			session, err := checker.CheckSession(r.Context(), claims.SessionID)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Session is no longer valid")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the authenticated session from context
func SessionFromContext(ctx context.Context) (*models.DeviceSession, bool) {
	session, ok := ctx.Value(SessionContextKey).(*models.DeviceSession)
	return session, ok
}
