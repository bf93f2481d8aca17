// Package handler defines the HTTP handlers.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/queue"
	"github.com/medivoyage/booking-api/internal/repository"
	queue_publisher "github.com/medivoyage/booking-api/internal/service"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// contextWithTimeout bounds DB work to the request plus a deadline.
func contextWithTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// pathID parses a numeric :id style path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// ----- shared response parts -----

type procedurePart struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Quantity  uint32 `json:"quantity"`
	Confirmed bool   `json:"confirmed"`
}

type messagePart struct {
	ID        uint64    `json:"id"`
	SenderID  uint64    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type invoicePart struct {
	ID                  uint64     `json:"id"`
	BookingID           uint64     `json:"booking_id"`
	ProviderID          uint64     `json:"provider_id"`
	ProcedureTotalCents int64      `json:"procedure_total_cents"`
	CommissionRateBps   int32      `json:"commission_rate_bps"`
	CommissionCents     int64      `json:"commission_cents"`
	Status              string     `json:"status"`
	DisputeReason       *string    `json:"dispute_reason,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toProcedureParts(procedures []model.BookingProcedure) []procedurePart {
	out := make([]procedurePart, 0, len(procedures))
	for _, p := range procedures {
		out = append(out, procedurePart{ID: p.ID, Name: p.Name, Quantity: p.Quantity, Confirmed: p.Confirmed})
	}
	return out
}

func toMessageParts(messages []model.BookingMessage) []messagePart {
	out := make([]messagePart, 0, len(messages))
	for _, m := range messages {
		out = append(out, messagePart{ID: m.ID, SenderID: m.SenderID, Body: m.Body, CreatedAt: m.CreatedAt})
	}
	return out
}

func toInvoicePart(inv *model.CommissionInvoice) invoicePart {
	return invoicePart{
		ID:                  inv.ID,
		BookingID:           inv.BookingID,
		ProviderID:          inv.ProviderID,
		ProcedureTotalCents: inv.ProcedureTotalCents,
		CommissionRateBps:   inv.CommissionRateBps,
		CommissionCents:     inv.CommissionCents,
		Status:              inv.Status,
		DisputeReason:       inv.DisputeReason,
		PaidAt:              inv.PaidAt,
		CreatedAt:           inv.CreatedAt,
	}
}

// advanceBooking routes a status change through the lifecycle authority
// and persists it with a guarded update.  On a lost write race the
// booking is re-read and the decision retried once against the fresh
// status, so two identical concurrent requests both see success.  The
// returned booking reflects the persisted state; the Decision tells the
// caller which notification to dispatch.
func advanceBooking(ctx context.Context, repo *repository.BookingRepo, b *model.Booking, requested, actor string, quoteCents, depositCents *int64) (*model.Booking, lifecycle.Decision, error) {
	for attempt := 0; attempt < 2; attempt++ {
		dec, err := lifecycle.AttemptTransition(b.Status, requested, actor)
		if err != nil {
			return nil, lifecycle.Decision{}, err
		}
		if dec.NoOp {
			return b, dec, nil
		}
		err = repo.UpdateStatus(ctx, b.ID, b.Status, dec.Next, quoteCents, depositCents)
		if err == nil {
			fresh, err := repo.GetByID(ctx, b.ID)
			if err != nil {
				return nil, lifecycle.Decision{}, err
			}
			return fresh, dec, nil
		}
		if !errors.Is(err, repository.ErrStatusChanged) {
			return nil, lifecycle.Decision{}, err
		}
		b, err = repo.GetByID(ctx, b.ID)
		if err != nil {
			return nil, lifecycle.Decision{}, err
		}
	}
	return nil, lifecycle.Decision{}, repository.ErrStatusChanged
}

// advanceBookingTx is advanceBooking within an existing transaction,
// used when the status change must commit together with other writes
// (e.g. a reply message joining the PROVIDER_RESPONDED transition).
func advanceBookingTx(ctx context.Context, repo *repository.BookingRepo, tx *sql.Tx, b *model.Booking, requested, actor string, quoteCents, depositCents *int64) (*model.Booking, lifecycle.Decision, error) {
	for attempt := 0; attempt < 2; attempt++ {
		dec, err := lifecycle.AttemptTransition(b.Status, requested, actor)
		if err != nil {
			return nil, lifecycle.Decision{}, err
		}
		if dec.NoOp {
			return b, dec, nil
		}
		err = repo.UpdateStatusTx(ctx, tx, b.ID, b.Status, dec.Next, quoteCents, depositCents)
		if err == nil {
			fresh, err := repo.GetByIDTx(ctx, tx, b.ID)
			if err != nil {
				return nil, lifecycle.Decision{}, err
			}
			return fresh, dec, nil
		}
		if !errors.Is(err, repository.ErrStatusChanged) {
			return nil, lifecycle.Decision{}, err
		}
		b, err = repo.GetByIDTx(ctx, tx, b.ID)
		if err != nil {
			return nil, lifecycle.Decision{}, err
		}
	}
	return nil, lifecycle.Decision{}, repository.ErrStatusChanged
}

// dispatchNotification publishes the notification a lifecycle decision
// asks for.  Fire and forget: failures are logged, never surfaced.
func dispatchNotification(b *model.Booking, dec lifecycle.Decision) {
	if dec.Notify == "" {
		return
	}
	recipient := b.PatientID
	if dec.Recipient == lifecycle.RecipientProvider {
		recipient = b.ProviderID
	}
	publishEvent(queue.NotificationEvent{
		Type:        dec.Notify,
		BookingID:   b.ID,
		RecipientID: recipient,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func publishEvent(event queue.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queue_publisher.PublishNotification(ctx, event); err != nil {
			log.Printf("handler: notification %s for booking %d not delivered: %v", event.Type, event.BookingID, err)
		}
	}()
}

// transitionError maps lifecycle and repository errors from a status
// change to an HTTP response.
func transitionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "illegal status transition"})
	case errors.Is(err, lifecycle.ErrTerminalState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is in a terminal state"})
	case errors.Is(err, lifecycle.ErrActorNotAllowed):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrStatusChanged):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed concurrently, retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
}
