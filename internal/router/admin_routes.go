package router

import (
	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/handler"
	"github.com/medivoyage/booking-api/internal/middleware"
)

// RegisterAdmin registers the back-office ledger endpoints under
// /v1/admin.  ADMIN role only.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)
	g.POST("/invoices/:id/pay", h.MarkPaid)
	g.POST("/invoices/:id/dispute", h.MarkDisputed)
	g.GET("/providers/:id/commission-summary", h.CommissionSummary)
}
