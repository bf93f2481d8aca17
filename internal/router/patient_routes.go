package router

import (
	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/handler"
	"github.com/medivoyage/booking-api/internal/middleware"
)

// RegisterPatient registers patient-scoped endpoints under /v1.  All
// routes require a valid JWT with the PATIENT role.  Patients open
// inquiries, follow their bookings, message providers, record payment
// confirmations and cancel.
func RegisterPatient(e *echo.Echo, h *handler.PatientHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PATIENT"),
	)
	g.POST("/bookings", h.CreateInquiry)
	g.GET("/my-bookings", h.ListMine)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/messages", h.PostMessage)
	// deposit/confirm stand in for the payment processor's callbacks
	g.POST("/bookings/:id/deposit", h.PayDeposit)
	g.POST("/bookings/:id/confirm", h.ConfirmTrip)
	g.POST("/bookings/:id/cancel", h.Cancel)
}
