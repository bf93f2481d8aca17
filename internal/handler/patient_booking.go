package handler

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/config"
	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/queue"
	"github.com/medivoyage/booking-api/internal/repository"
)

// PatientHandler serves the patient-facing booking endpoints.
type PatientHandler struct {
	Bookings       *repository.BookingRepo
	Messages       *repository.MessageRepo
	Users          *repository.UserRepo
	DefaultRateBps int32
}

func NewPatientHandler(cfg config.Config, b *repository.BookingRepo, m *repository.MessageRepo, u *repository.UserRepo) *PatientHandler {
	if b == nil || m == nil || u == nil {
		panic("nil repository passed to NewPatientHandler")
	}
	return &PatientHandler{
		Bookings:       b,
		Messages:       m,
		Users:          u,
		DefaultRateBps: int32(cfg.DefaultCommissionBps),
	}
}

type procedureReq struct {
	Name     string `json:"name"`
	Quantity uint32 `json:"quantity"`
}

type createInquiryReq struct {
	ProviderID uint64         `json:"provider_id"`
	Procedures []procedureReq `json:"procedures"`
	Message    string         `json:"message"`
}

type amountReq struct {
	AmountCents int64 `json:"amount_cents"`
}

// bookingResp is the wire shape of a booking shared by patient and
// provider endpoints.
type bookingResp struct {
	ID                  uint64     `json:"id"`
	Code                string     `json:"code"`
	PatientID           uint64     `json:"patient_id"`
	ProviderID          uint64     `json:"provider_id"`
	Status              string     `json:"status"`
	QuotedPriceCents    *int64     `json:"quoted_price_cents,omitempty"`
	DepositCents        *int64     `json:"deposit_cents,omitempty"`
	CommissionRateBps   int32      `json:"commission_rate_bps"`
	ConfirmedTotalCents *int64     `json:"confirmed_total_cents,omitempty"`
	CommissionCents     *int64     `json:"commission_cents,omitempty"`
	CheckedIn           bool       `json:"checked_in"`
	CheckedInAt         *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toBookingResp(b *model.Booking) bookingResp {
	return bookingResp{
		ID:                  b.ID,
		Code:                b.Code,
		PatientID:           b.PatientID,
		ProviderID:          b.ProviderID,
		Status:              b.Status,
		QuotedPriceCents:    b.QuotedPriceCents,
		DepositCents:        b.DepositCents,
		CommissionRateBps:   b.CommissionRateBps,
		ConfirmedTotalCents: b.ConfirmedTotalCents,
		CommissionCents:     b.CommissionCents,
		CheckedIn:           b.CheckedIn,
		CheckedInAt:         b.CheckedInAt,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

// CreateInquiry opens a booking in the INQUIRY state with its requested
// procedure lines and the patient's first message, all in one
// transaction, then notifies the provider.
func (h *PatientHandler) CreateInquiry(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createInquiryReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ProviderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provider_id required"})
	}
	if len(req.Procedures) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one procedure required"})
	}
	procedures := make([]model.BookingProcedure, 0, len(req.Procedures))
	for _, p := range req.Procedures {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "procedure name required"})
		}
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		procedures = append(procedures, model.BookingProcedure{Name: name, Quantity: qty})
	}

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	provider, err := h.Users.GetByID(ctx, req.ProviderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "provider not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if provider.Role != model.RoleProvider || !provider.IsActive {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "provider not found"})
	}
	// Snapshot the provider's rate onto the booking so later rate
	// renegotiations never change in-flight commissions.  Providers
	// without a negotiated rate get the platform default.
	rateBps := h.DefaultRateBps
	if provider.CommissionRateBps != nil {
		rateBps = *provider.CommissionRateBps
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

	booking, err := h.Bookings.CreateInquiryTx(ctx, tx, patientID, req.ProviderID, rateBps, procedures)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create booking failed"})
	}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		if err := h.Messages.AppendTx(ctx, tx, booking.ID, patientID, msg); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save message failed"})
		}
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	publishEvent(queue.NotificationEvent{
		Type:        lifecycle.NotifyInquiryReceived,
		BookingID:   booking.ID,
		RecipientID: booking.ProviderID,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, toBookingResp(booking))
}

// ListMine returns the patient's bookings, newest first.
func (h *PatientHandler) ListMine(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()
	bookings, err := h.Bookings.ListByPatient(ctx, patientID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]bookingResp, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResp(&bookings[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// Get returns one of the patient's bookings with its procedure lines
// and conversation.
func (h *PatientHandler) Get(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForPatient(ctx, id, patientID)
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

// PostMessage appends to the booking's conversation.  The log is
// append-only; there is no edit or delete.
func (h *PatientHandler) PostMessage(c echo.Context) error {
	patientID, err := getUserID(c)
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

	if _, err := h.Bookings.GetByIDForPatient(ctx, id, patientID); err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	msg, err := h.Messages.Append(ctx, id, patientID, strings.TrimSpace(req.Body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save message failed"})
	}
	return c.JSON(http.StatusCreated, messagePart{ID: msg.ID, SenderID: msg.SenderID, Body: msg.Body, CreatedAt: msg.CreatedAt})
}

// PayDeposit records the payment processor's deposit confirmation and
// moves the booking from QUOTED to DEPOSIT_PAID.  Real charge capture
// lives with the external processor; this endpoint stands in for its
// callback.
func (h *PatientHandler) PayDeposit(c echo.Context) error {
	return h.paymentTransition(c, model.StatusDepositPaid, true)
}

// ConfirmTrip records the remaining-balance confirmation and moves the
// booking from DEPOSIT_PAID to CONFIRMED.
func (h *PatientHandler) ConfirmTrip(c echo.Context) error {
	return h.paymentTransition(c, model.StatusConfirmed, false)
}

func (h *PatientHandler) paymentTransition(c echo.Context, target string, wantsAmount bool) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var depositCents *int64
	if wantsAmount {
		var req amountReq
		if err := c.Bind(&req); err != nil || req.AmountCents <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be positive"})
		}
		depositCents = &req.AmountCents
	}

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForPatient(ctx, id, patientID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	updated, dec, err := advanceBooking(ctx, h.Bookings, booking, target, lifecycle.ActorPayment, nil, depositCents)
	if err != nil {
		return transitionError(c, err)
	}
	dispatchNotification(updated, dec)
	return c.JSON(http.StatusOK, toBookingResp(updated))
}

// Cancel cancels the booking from any non-terminal state.
func (h *PatientHandler) Cancel(c echo.Context) error {
	patientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForPatient(ctx, id, patientID)
	if err != nil {
		if err == sql.ErrNoRows || err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	updated, dec, err := advanceBooking(ctx, h.Bookings, booking, model.StatusCancelled, lifecycle.ActorPatient, nil, nil)
	if err != nil {
		return transitionError(c, err)
	}
	dispatchNotification(updated, dec)
	return c.JSON(http.StatusOK, toBookingResp(updated))
}
