package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/repository"
)

// AdminHandler serves the back-office invoice ledger endpoints.
type AdminHandler struct {
	Invoices *repository.InvoiceRepo
}

func NewAdminHandler(i *repository.InvoiceRepo) *AdminHandler {
	if i == nil {
		panic("nil repository passed to NewAdminHandler")
	}
	return &AdminHandler{Invoices: i}
}

// MarkPaid settles a pending invoice.  Paying an invoice twice, or
// paying one that is disputed, answers 409.
func (h *AdminHandler) MarkPaid(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	inv, err := h.Invoices.MarkPaid(ctx, id, time.Now().UTC())
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(http.StatusOK, toInvoicePart(inv))
}

// MarkDisputed flags a pending invoice as disputed with a reason.
func (h *AdminHandler) MarkDisputed(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice id"})
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	inv, err := h.Invoices.MarkDisputed(ctx, id, strings.TrimSpace(req.Reason))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(http.StatusOK, toInvoicePart(inv))
}

// CommissionSummary returns a provider's pending and paid commission
// totals.
func (h *AdminHandler) CommissionSummary(c echo.Context) error {
	providerID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	summary, err := h.Invoices.SummarizeForProvider(ctx, providerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, summary)
}

func invoiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invoice not found"})
	case errors.Is(err, repository.ErrInvalidStateTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invoice is not pending"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
}
