package routes

import (
	"github.com/craftloom/backend/internal/auth"
	"github.com/craftloom/backend/internal/handlers"
	"github.com/craftloom/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes under the API prefix
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	revocationChecker auth.TokenRevocationChecker,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes. The login throttle is a coarse per-IP cap on top of the
	// per-account lockout enforced inside the auth service.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.RefreshToken)
	router.Get("/auth/check-ip-lock", authHandler.CheckIPLock)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, revocationChecker))

		r.Post("/auth/logout", authHandler.Logout)
	})
}
