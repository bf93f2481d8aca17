package settlement

import (
	"context"
	"database/sql"
	"time"

	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/repository"
)

// SettleWrite carries the values persisted by the atomic settlement
// write.  CommissionCents is derived by the service before the write;
// the store never computes money.
type SettleWrite struct {
	BookingID             uint64
	OperatorID            uint64
	ConfirmedProcedureIDs []uint64
	TotalCents            int64
	CommissionCents       int64
	At                    time.Time
}

// Store is the persistence surface the settlement service needs.  The
// production implementation wraps the SQL repositories in a single
// transaction per Settle call; tests substitute an in-memory store
// with the same compare-and-swap semantics.
type Store interface {
	// ResolveByCode looks up a booking by normalized code scoped to one
	// provider.  Missing rows surface as sql.ErrNoRows.
	ResolveByCode(ctx context.Context, code string, providerID uint64) (*model.Booking, error)
	// BookingByID reloads a booking, used to report the precise guard
	// failure after a lost settle race.
	BookingByID(ctx context.Context, bookingID uint64) (*model.Booking, error)
	// RequestedProcedures lists the booking's requested procedure lines.
	RequestedProcedures(ctx context.Context, bookingID uint64) ([]model.BookingProcedure, error)
	// Settle atomically applies the booking mutation and creates the
	// invoice.  It returns repository.ErrStatusChanged when the
	// compare-and-swap finds the booking already settled or cancelled,
	// and repository.ErrConflict when an invoice already exists.
	Settle(ctx context.Context, w SettleWrite) (*model.Booking, *model.CommissionInvoice, error)
	// CompletedWithoutInvoice lists booking ids violating the
	// one-invoice-per-completed-booking invariant.
	CompletedWithoutInvoice(ctx context.Context) ([]uint64, error)
	// BackfillInvoice creates the missing invoice for an already
	// completed booking during reconciliation.
	BackfillInvoice(ctx context.Context, b *model.Booking) (*model.CommissionInvoice, error)
}

// sqlStore implements Store on top of the MySQL repositories.
type sqlStore struct {
	db       *sql.DB
	bookings *repository.BookingRepo
	invoices *repository.InvoiceRepo
}

// NewStore builds the production Store from the shared repositories.
func NewStore(db *sql.DB, bookings *repository.BookingRepo, invoices *repository.InvoiceRepo) Store {
	if db == nil || bookings == nil || invoices == nil {
		panic("nil dependency passed to settlement.NewStore")
	}
	return &sqlStore{db: db, bookings: bookings, invoices: invoices}
}

func (s *sqlStore) ResolveByCode(ctx context.Context, code string, providerID uint64) (*model.Booking, error) {
	return s.bookings.GetByCodeForProvider(ctx, code, providerID)
}

func (s *sqlStore) BookingByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return s.bookings.GetByID(ctx, bookingID)
}

func (s *sqlStore) RequestedProcedures(ctx context.Context, bookingID uint64) ([]model.BookingProcedure, error) {
	return s.bookings.ListProcedures(ctx, bookingID)
}

// Settle wraps the compare-and-swap booking update and the invoice
// insert in one transaction.  Either both land or neither does; an
// invoice unique-key conflict rolls back the booking mutation rather
// than leaving a completed booking behind.
func (s *sqlStore) Settle(ctx context.Context, w SettleWrite) (*model.Booking, *model.CommissionInvoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.bookings.SettleTx(ctx, tx, w.BookingID, w.OperatorID, w.ConfirmedProcedureIDs, w.TotalCents, w.CommissionCents, w.At); err != nil {
		return nil, nil, err
	}
	booking, err := s.bookings.GetByIDTx(ctx, tx, w.BookingID)
	if err != nil {
		return nil, nil, err
	}
	invoice, err := s.invoices.CreateTx(ctx, tx, booking.ID, booking.ProviderID, w.TotalCents, booking.CommissionRateBps, w.CommissionCents)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	return booking, invoice, nil
}

func (s *sqlStore) CompletedWithoutInvoice(ctx context.Context) ([]uint64, error) {
	return s.invoices.ListCompletedWithoutInvoice(ctx)
}

func (s *sqlStore) BackfillInvoice(ctx context.Context, b *model.Booking) (*model.CommissionInvoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var total, commission int64
	if b.ConfirmedTotalCents != nil {
		total = *b.ConfirmedTotalCents
	}
	if b.CommissionCents != nil {
		commission = *b.CommissionCents
	} else {
		commission = model.CommissionCents(total, b.CommissionRateBps)
	}
	invoice, err := s.invoices.CreateTx(ctx, tx, b.ID, b.ProviderID, total, b.CommissionRateBps, commission)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return invoice, nil
}
