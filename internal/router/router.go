// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/medivoyage/booking-api/internal/config"
	"github.com/medivoyage/booking-api/internal/handler"
	"github.com/medivoyage/booking-api/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication: the
// health check and the cached public provider directory.
func RegisterRoutes(e *echo.Echo, db *sql.DB, d *handler.DirectoryHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/v1/providers", d.List, middleware.NewRedisCache(cacheCfg, rdb))
}

// RegisterAuth registers the auth endpoints.  Register, login, refresh
// and logout live under /v1/auth without a session; /v1/me requires a
// valid access token with any known role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("PATIENT", "PROVIDER", "ADMIN"))
	auth.GET("/me", a.Me)
}
