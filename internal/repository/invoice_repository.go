package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/medivoyage/booking-api/internal/model"
)

// InvoiceRepo provides access to the commission_invoices ledger.  The
// ledger is append-mostly: rows are created once by the settlement
// workflow and only their payment status may change afterwards.  A
// unique key on booking_id guarantees at most one invoice per booking
// at the schema level.
type InvoiceRepo struct {
	db *sql.DB
}

// NewInvoiceRepo returns a new InvoiceRepo bound to the given database.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceColumns = `id, booking_id, provider_id, procedure_total_cents,
	   commission_rate_bps, commission_cents, status, dispute_reason, paid_at, created_at`

func scanInvoice(row interface{ Scan(...any) error }) (*model.CommissionInvoice, error) {
	var (
		inv    model.CommissionInvoice
		reason sql.NullString
		paidAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &inv.BookingID, &inv.ProviderID, &inv.ProcedureTotalCents,
		&inv.CommissionRateBps, &inv.CommissionCents, &inv.Status, &reason, &paidAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		s := reason.String
		inv.DisputeReason = &s
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		inv.PaidAt = &t
	}
	return &inv, nil
}

// CreateTx inserts a pending invoice within the provided transaction.
// A duplicate booking_id violates the unique key and is reported as
// ErrConflict so the settlement transaction rolls back instead of
// double-billing.  The monetary fields are snapshots of the booking at
// settlement time.
func (r *InvoiceRepo) CreateTx(ctx context.Context, tx *sql.Tx, bookingID, providerID uint64, totalCents int64, rateBps int32, commissionCents int64) (*model.CommissionInvoice, error) {
	const ins = `INSERT INTO commission_invoices
				 (booking_id, provider_id, procedure_total_cents, commission_rate_bps, commission_cents, status)
				 VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, bookingID, providerID, totalCents, rateBps, commissionCents, model.InvoicePending)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	const sel = `SELECT ` + invoiceColumns + ` FROM commission_invoices WHERE id = ?`
	return scanInvoice(tx.QueryRowContext(ctx, sel, id))
}

// GetByID fetches an invoice by its identifier.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID uint64) (*model.CommissionInvoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM commission_invoices WHERE id = ?`
	return scanInvoice(r.db.QueryRowContext(ctx, q, invoiceID))
}

// GetByBookingID fetches the invoice belonging to a booking, if any.
func (r *InvoiceRepo) GetByBookingID(ctx context.Context, bookingID uint64) (*model.CommissionInvoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM commission_invoices WHERE booking_id = ?`
	return scanInvoice(r.db.QueryRowContext(ctx, q, bookingID))
}

// MarkPaid transitions a PENDING invoice to PAID and records the
// payment timestamp.  The update is conditional on the current status;
// if the invoice exists but is not pending, ErrInvalidStateTransition
// is returned — there is no un-paying through this path.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, invoiceID uint64, paidAt time.Time) (*model.CommissionInvoice, error) {
	const q = `UPDATE commission_invoices SET status = ?, paid_at = ?
			   WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, model.InvoicePaid, paidAt.UTC(), invoiceID, model.InvoicePending)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Distinguish a missing invoice from one in the wrong state.
		if _, err := r.GetByID(ctx, invoiceID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidStateTransition
	}
	return r.GetByID(ctx, invoiceID)
}

// MarkDisputed transitions a PENDING invoice to DISPUTED with a reason.
// Same conditional-update contract as MarkPaid.
func (r *InvoiceRepo) MarkDisputed(ctx context.Context, invoiceID uint64, reason string) (*model.CommissionInvoice, error) {
	const q = `UPDATE commission_invoices SET status = ?, dispute_reason = ?
			   WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, model.InvoiceDisputed, reason, invoiceID, model.InvoicePending)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, invoiceID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidStateTransition
	}
	return r.GetByID(ctx, invoiceID)
}

// ProviderSummary aggregates a provider's invoices by payment status.
type ProviderSummary struct {
	ProviderID   uint64 `json:"provider_id"`
	PendingCount int64  `json:"pending_count"`
	PendingCents int64  `json:"pending_cents"`
	PaidCount    int64  `json:"paid_count"`
	PaidCents    int64  `json:"paid_cents"`
}

// SummarizeForProvider returns pending and paid totals for one
// provider.  A provider with no invoices yields a zero summary rather
// than an error.
func (r *InvoiceRepo) SummarizeForProvider(ctx context.Context, providerID uint64) (*ProviderSummary, error) {
	const q = `SELECT
				 COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0),
				 COALESCE(SUM(CASE WHEN status = 'PENDING' THEN commission_cents ELSE 0 END), 0),
				 COALESCE(SUM(CASE WHEN status = 'PAID' THEN 1 ELSE 0 END), 0),
				 COALESCE(SUM(CASE WHEN status = 'PAID' THEN commission_cents ELSE 0 END), 0)
			   FROM commission_invoices WHERE provider_id = ?`
	s := ProviderSummary{ProviderID: providerID}
	err := r.db.QueryRowContext(ctx, q, providerID).Scan(
		&s.PendingCount, &s.PendingCents, &s.PaidCount, &s.PaidCents,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListCompletedWithoutInvoice returns ids of COMPLETED bookings that
// have no invoice row.  A completed booking without an invoice is a
// financial-integrity defect; the settlement service sweeps these at
// startup and backfills them.
func (r *InvoiceRepo) ListCompletedWithoutInvoice(ctx context.Context) ([]uint64, error) {
	const q = `SELECT b.id
			   FROM bookings b
			   LEFT JOIN commission_invoices ci ON ci.booking_id = b.id
			   WHERE b.status = 'COMPLETED' AND ci.id IS NULL`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
