// Package settlement implements the check-in workflow: resolving a
// booking by its short code, guarding against re-entry and
// cancellation, validating the operator's confirmed procedure
// selection, deriving the commission and persisting the booking
// mutation together with exactly one commission invoice.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/queue"
	"github.com/medivoyage/booking-api/internal/repository"
)

// NotifyFunc publishes a notification event.  Failures are the
// caller's to ignore: settlement logs them and carries on, a lost
// notification never fails a completed settlement.
type NotifyFunc func(ctx context.Context, event queue.NotificationEvent) error

// Service orchestrates check-in settlement and invoice reconciliation.
type Service struct {
	store  Store
	notify NotifyFunc
	now    func() time.Time
}

// NewService constructs a settlement service.  notify may be nil when
// no broker is configured; notifications are then skipped.
func NewService(store Store, notify NotifyFunc) *Service {
	if store == nil {
		panic("nil store passed to settlement.NewService")
	}
	return &Service{
		store:  store,
		notify: notify,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of a successful settlement.
type Result struct {
	Booking *model.Booking
	Invoice *model.CommissionInvoice
}

// Settle finalizes a booking at physical check-in.  The operator's
// identity is an explicit parameter rather than ambient session state
// so the workflow stays independently testable.
//
// The guard order is: resolve, already-checked-in, cancelled, input
// validation, transition legality.  Validation failures reject before
// any state is written.  The decisive mechanism under concurrent calls
// is the store's compare-and-swap: when two settles race, exactly one
// write lands and the loser re-reads the booking to report the precise
// guard failure, normally AlreadyCheckedInError.
func (s *Service) Settle(ctx context.Context, code string, providerID, operatorID uint64, confirmedProcedureIDs []uint64, totalCents int64) (*Result, error) {
	booking, err := s.store.ResolveByCode(ctx, code, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if err := guardBooking(booking); err != nil {
		return nil, err
	}
	if totalCents < 0 {
		return nil, ErrInvalidTotal
	}
	requested, err := s.store.RequestedProcedures(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	selection, err := normalizeSelection(confirmedProcedureIDs, requested)
	if err != nil {
		return nil, err
	}
	// Completion must be a legal lifecycle step; a booking that never
	// reached CONFIRMED cannot be settled.
	if _, err := lifecycle.AttemptTransition(booking.Status, model.StatusCompleted, lifecycle.ActorSystem); err != nil {
		return nil, err
	}

	commission := model.CommissionCents(totalCents, booking.CommissionRateBps)
	settled, invoice, err := s.store.Settle(ctx, SettleWrite{
		BookingID:             booking.ID,
		OperatorID:            operatorID,
		ConfirmedProcedureIDs: selection,
		TotalCents:            totalCents,
		CommissionCents:       commission,
		At:                    s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) || errors.Is(err, repository.ErrConflict) {
			// Lost the race; report what actually happened to the booking.
			current, readErr := s.store.BookingByID(ctx, booking.ID)
			if readErr != nil {
				return nil, err
			}
			if guardErr := guardBooking(current); guardErr != nil {
				return nil, guardErr
			}
		}
		return nil, err
	}

	s.publish(ctx, queue.NotificationEvent{
		Type:        lifecycle.NotifyBookingCompleted,
		BookingID:   settled.ID,
		RecipientID: settled.PatientID,
		OccurredAt:  s.now().Format(time.RFC3339),
	})
	return &Result{Booking: settled, Invoice: invoice}, nil
}

// Lookup resolves a code for display at the check-in desk, returning
// the booking and its requested procedure checklist.  It applies no
// guards so staff can inspect already settled or cancelled bookings.
func (s *Service) Lookup(ctx context.Context, code string, providerID uint64) (*model.Booking, []model.BookingProcedure, error) {
	booking, err := s.store.ResolveByCode(ctx, code, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrBookingNotFound
		}
		return nil, nil, err
	}
	procedures, err := s.store.RequestedProcedures(ctx, booking.ID)
	if err != nil {
		return nil, nil, err
	}
	return booking, procedures, nil
}

// ReconcileInvoices backfills invoices for completed bookings that
// have none.  Every occurrence is a financial-integrity defect, so
// each is logged at error level even when the backfill succeeds.  It
// returns the number of invoices created.
func (s *Service) ReconcileInvoices(ctx context.Context) (int, error) {
	ids, err := s.store.CompletedWithoutInvoice(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, id := range ids {
		booking, err := s.store.BookingByID(ctx, id)
		if err != nil {
			log.Printf("settlement: ERROR reconcile: load booking %d: %v", id, err)
			continue
		}
		invoice, err := s.store.BackfillInvoice(ctx, booking)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue // someone else backfilled meanwhile
			}
			log.Printf("settlement: ERROR reconcile: backfill invoice for booking %d: %v", id, err)
			continue
		}
		log.Printf("settlement: ERROR completed booking %d had no invoice; backfilled invoice %d for %d cents",
			id, invoice.ID, invoice.CommissionCents)
		created++
	}
	return created, nil
}

// guardBooking maps a booking's settled/cancelled state to the
// corresponding settlement error, or nil when it is still settleable.
func guardBooking(b *model.Booking) error {
	if b.CheckedIn {
		e := &AlreadyCheckedInError{}
		if b.CheckedInAt != nil {
			e.At = *b.CheckedInAt
		}
		if b.CheckedInBy != nil {
			e.By = *b.CheckedInBy
		}
		return e
	}
	if b.Status == model.StatusCancelled {
		return ErrBookingCancelled
	}
	return nil
}

// normalizeSelection deduplicates the operator's selection and checks
// it against the requested list.  An empty selection is allowed: a
// booking can complete with zero billed procedures, e.g. a
// consultation that led nowhere.
func normalizeSelection(selected []uint64, requested []model.BookingProcedure) ([]uint64, error) {
	known := make(map[uint64]bool, len(requested))
	for _, p := range requested {
		known[p.ID] = true
	}
	out := make([]uint64, 0, len(selected))
	seen := make(map[uint64]bool, len(selected))
	for _, id := range selected {
		if !known[id] {
			return nil, ErrUnknownProcedure
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, event queue.NotificationEvent) {
	if s.notify == nil {
		return
	}
	if err := s.notify(ctx, event); err != nil {
		log.Printf("settlement: notification publish failed (ignored): %v", err)
	}
}
