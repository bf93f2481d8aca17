package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/medivoyage/booking-api/internal/config"
	"github.com/medivoyage/booking-api/internal/handler"
	"github.com/medivoyage/booking-api/internal/middleware"
)

// RegisterProvider registers provider-scoped endpoints: the inquiry
// inbox under /v1/provider and the front-desk check-in endpoints under
// /v1/checkin.  The check-in code lookup carries the token-bucket rate
// limiter so booking codes cannot be enumerated.
func RegisterProvider(e *echo.Echo, h *handler.ProviderHandler, ch *handler.CheckinHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1/provider",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PROVIDER"),
	)
	g.GET("/bookings", h.List)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/reply", h.Reply)
	g.POST("/bookings/:id/quote", h.Quote)
	g.POST("/bookings/:id/messages", h.PostMessage)
	g.POST("/bookings/:id/cancel", h.Cancel)

	checkin := e.Group(
		"/v1/checkin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PROVIDER"),
	)
	checkin.GET("/:code", ch.Lookup, middleware.NewTokenBucket(rlCfg, rdb))
	checkin.POST("/:code/settle", ch.Settle)
}
