package handler

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/repository"
)

// ProviderHandler serves the provider-facing booking endpoints: the
// inquiry inbox, replies, quoting and cancellation.
type ProviderHandler struct {
	Bookings *repository.BookingRepo
	Messages *repository.MessageRepo
}

func NewProviderHandler(b *repository.BookingRepo, m *repository.MessageRepo) *ProviderHandler {
	if b == nil || m == nil {
		panic("nil repository passed to NewProviderHandler")
	}
	return &ProviderHandler{Bookings: b, Messages: m}
}

// List returns the provider's bookings, optionally filtered by
// ?status=INQUIRY etc.
func (h *ProviderHandler) List(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if status != "" && !lifecycle.IsValidStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()
	bookings, err := h.Bookings.ListByProvider(ctx, providerID, status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]bookingResp, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResp(&bookings[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// Get returns one of the provider's bookings with procedures and the
// conversation.
func (h *ProviderHandler) Get(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForProvider(ctx, id, providerID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	procedures, err := h.Bookings.ListProcedures(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	messages, err := h.Messages.ListByBooking(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":    toBookingResp(booking),
		"procedures": toProcedureParts(procedures),
		"messages":   toMessageParts(messages),
	})
}

// Reply acknowledges a new inquiry: the booking moves INQUIRY to
// PROVIDER_RESPONDED and the provider's message joins the conversation.
// Both writes share one transaction so a failed message append never
// leaves the booking acknowledged without its reply text.
func (h *ProviderHandler) Reply(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message required"})
	}

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForProvider(ctx, id, providerID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	tx, err := h.Bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	updated, dec, err := advanceBookingTx(ctx, h.Bookings, tx, booking, model.StatusProviderResponded, lifecycle.ActorProvider, nil, nil)
	if err != nil {
		return transitionError(c, err)
	}
	if err := h.Messages.AppendTx(ctx, tx, id, providerID, strings.TrimSpace(req.Message)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save message failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	dispatchNotification(updated, dec)
	return c.JSON(http.StatusOK, toBookingResp(updated))
}

// Quote attaches a price and moves the booking PROVIDER_RESPONDED →
// QUOTED.  An optional message explains the quote.
func (h *ProviderHandler) Quote(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req struct {
		PriceCents int64  `json:"price_cents"`
		Message    string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || req.PriceCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents must be positive"})
	}

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForProvider(ctx, id, providerID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	updated, dec, err := advanceBooking(ctx, h.Bookings, booking, model.StatusQuoted, lifecycle.ActorProvider, &req.PriceCents, nil)
	if err != nil {
		return transitionError(c, err)
	}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		if _, err := h.Messages.Append(ctx, id, providerID, msg); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save message failed"})
		}
	}
	dispatchNotification(updated, dec)
	return c.JSON(http.StatusOK, toBookingResp(updated))
}

// PostMessage appends a provider message to the conversation.
func (h *ProviderHandler) PostMessage(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "body required"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	if _, err := h.Bookings.GetByIDForProvider(ctx, id, providerID); err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	msg, err := h.Messages.Append(ctx, id, providerID, strings.TrimSpace(req.Body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save message failed"})
	}
	return c.JSON(http.StatusCreated, messagePart{ID: msg.ID, SenderID: msg.SenderID, Body: msg.Body, CreatedAt: msg.CreatedAt})
}

// Cancel cancels one of the provider's bookings.
func (h *ProviderHandler) Cancel(c echo.Context) error {
	providerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForProvider(ctx, id, providerID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	updated, dec, err := advanceBooking(ctx, h.Bookings, booking, model.StatusCancelled, lifecycle.ActorProvider, nil, nil)
	if err != nil {
		return transitionError(c, err)
	}
	dispatchNotification(updated, dec)
	return c.JSON(http.StatusOK, toBookingResp(updated))
}
