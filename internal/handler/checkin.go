package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/repository"
	"github.com/medivoyage/booking-api/internal/settlement"
)

// Settler is the slice of the settlement service the check-in endpoints
// need.  *settlement.Service satisfies it.
type Settler interface {
	Lookup(ctx context.Context, code string, providerID uint64) (*model.Booking, []model.BookingProcedure, error)
	Settle(ctx context.Context, code string, providerID, operatorID uint64, confirmedProcedureIDs []uint64, totalCents int64) (*settlement.Result, error)
}

// CheckinHandler serves the front-desk endpoints: code lookup and
// settlement.  Both are scoped to the authenticated provider, so a code
// only resolves at the clinic it belongs to.
type CheckinHandler struct {
	Settlement Settler
}

func NewCheckinHandler(s Settler) *CheckinHandler {
	if s == nil {
		panic("nil settlement service passed to NewCheckinHandler")
	}
	return &CheckinHandler{Settlement: s}
}

type settleReq struct {
	ConfirmedProcedureIDs []uint64 `json:"confirmed_procedure_ids"`
	ConfirmedTotalCents   int64    `json:"confirmed_total_cents"`
}

// Lookup resolves a booking code for the check-in desk: the booking
// plus its requested procedure checklist.
func (h *CheckinHandler) Lookup(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code := c.Param("code")

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, procedures, err := h.Settlement.Lookup(ctx, code, providerID)
	if err != nil {
		if errors.Is(err, settlement.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":    toBookingResp(booking),
		"procedures": toProcedureParts(procedures),
	})
}

// Settle finalizes the booking at physical check-in.  Success returns
// the completed booking and its pending commission invoice.  A repeat
// call answers 409 with the original check-in facts, so double taps at
// the desk are harmless.
func (h *CheckinHandler) Settle(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code := c.Param("code")
	var req settleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()

	// The operator is the logged-in provider user; clinics with staff
	// accounts get per-operator attribution for free.
	res, err := h.Settlement.Settle(ctx, code, providerID, providerID, req.ConfirmedProcedureIDs, req.ConfirmedTotalCents)
	if err != nil {
		return settleError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": toBookingResp(res.Booking),
		"invoice": toInvoicePart(res.Invoice),
	})
}

func settleError(c echo.Context, err error) error {
	var checked *settlement.AlreadyCheckedInError
	switch {
	case errors.Is(err, settlement.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.As(err, &checked):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":         "already checked in",
			"checked_in_at": checked.At.UTC().Format(time.RFC3339),
			"checked_in_by": checked.By,
		})
	case errors.Is(err, settlement.ErrBookingCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is cancelled"})
	case errors.Is(err, settlement.ErrInvalidTotal):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirmed_total_cents must not be negative"})
	case errors.Is(err, settlement.ErrUnknownProcedure):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirmed procedure not in requested list"})
	case errors.Is(err, lifecycle.ErrIllegalTransition), errors.Is(err, lifecycle.ErrTerminalState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking not ready for check-in"})
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrStatusChanged):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed concurrently, retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "settlement failed"})
	}
}
