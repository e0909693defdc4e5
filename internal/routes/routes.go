package routes

import (
	"github.com/estateway/gatekeeper/internal/auth"
	"github.com/estateway/gatekeeper/internal/handlers"
	"github.com/estateway/gatekeeper/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	tokenCodec *auth.TokenCodec,
	sessionChecker auth.SessionChecker,
) {
	loginRateLimit := middleware.DefaultLoginRateLimit()
	sessionRateLimit := middleware.DefaultSessionRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(loginRateLimit)).Post("/auth/login", authHandler.Login)
	// Validation is public: a revoked session must still get a clean
	// valid=false answer so the client can sign itself out.
	router.With(middleware.RateLimitByIP(sessionRateLimit)).Post("/auth/session/validate", sessionHandler.Validate)

	// Protected routes - a live session required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenCodec, sessionChecker))
		r.Use(middleware.RateLimitBySession(sessionRateLimit))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/attempts", authHandler.RecentAttempts)

		r.Get("/sessions", sessionHandler.List)
		r.Post("/sessions/touch", sessionHandler.Touch)
		r.Post("/sessions/revoke-others", sessionHandler.RevokeOthers)
		r.Delete("/sessions/{id}", sessionHandler.Revoke)

		r.Get("/alerts", sessionHandler.Alerts)
	})
}
