package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/utils"
)

// BookingRepo provides persistence for bookings and their requested
// procedure lines.  Bookings are never physically deleted; cancellation
// is a status change.  All timestamp fields are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so that orchestrating layers can
// begin transactions spanning multiple repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, code, patient_id, provider_id, status,
	   quoted_price_cents, deposit_cents, commission_rate_bps,
	   confirmed_total_cents, commission_cents,
	   checked_in, checked_in_at, checked_in_by, created_at, updated_at`

// scanBooking reads one bookings row from any row scanner.
func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var (
		b           model.Booking
		quoted      sql.NullInt64
		deposit     sql.NullInt64
		total       sql.NullInt64
		commission  sql.NullInt64
		checkedInAt sql.NullTime
		checkedInBy sql.NullInt64
	)
	err := row.Scan(
		&b.ID, &b.Code, &b.PatientID, &b.ProviderID, &b.Status,
		&quoted, &deposit, &b.CommissionRateBps,
		&total, &commission,
		&b.CheckedIn, &checkedInAt, &checkedInBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if quoted.Valid {
		v := quoted.Int64
		b.QuotedPriceCents = &v
	}
	if deposit.Valid {
		v := deposit.Int64
		b.DepositCents = &v
	}
	if total.Valid {
		v := total.Int64
		b.ConfirmedTotalCents = &v
	}
	if commission.Valid {
		v := commission.Int64
		b.CommissionCents = &v
	}
	if checkedInAt.Valid {
		t := checkedInAt.Time.UTC()
		b.CheckedInAt = &t
	}
	if checkedInBy.Valid {
		v := uint64(checkedInBy.Int64)
		b.CheckedInBy = &v
	}
	return &b, nil
}

// CreateInquiryTx inserts a booking in the INQUIRY state together with
// its requested procedure lines, all within the provided transaction.
// The booking code is generated here; on the rare duplicate within the
// same provider the insert is retried with a fresh code.  The caller
// must commit or roll back the transaction.
func (r *BookingRepo) CreateInquiryTx(ctx context.Context, tx *sql.Tx, patientID, providerID uint64, rateBps int32, procedures []model.BookingProcedure) (*model.Booking, error) {
	const ins = `INSERT INTO bookings (code, patient_id, provider_id, status, commission_rate_bps)
				 VALUES (?, ?, ?, ?, ?)`
	var (
		res  sql.Result
		code string
		err  error
	)
	for attempt := 0; attempt < 3; attempt++ {
		code, err = utils.NewBookingCode()
		if err != nil {
			return nil, err
		}
		res, err = tx.ExecContext(ctx, ins, code, patientID, providerID, model.StatusInquiry, rateBps)
		if err == nil {
			break
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	bookingID := uint64(id)
	if len(procedures) > 0 {
		query := `INSERT INTO booking_procedures (booking_id, name, quantity) VALUES `
		args := make([]any, 0, len(procedures)*3)
		for i, p := range procedures {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, bookingID, p.Name, p.Quantity)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	const sel = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(tx.QueryRowContext(ctx, sel, bookingID))
}

// GetByCodeForProvider resolves a check-in code for one provider.  The
// code is trimmed and uppercased here; callers must not be trusted to
// normalize.  The lookup is scoped to the provider so that a code
// belonging to another provider resolves to sql.ErrNoRows exactly like
// a code that does not exist.
func (r *BookingRepo) GetByCodeForProvider(ctx context.Context, code string, providerID uint64) (*model.Booking, error) {
	code = utils.NormalizeBookingCode(code)
	if code == "" {
		return nil, sql.ErrNoRows
	}
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE code = ? AND provider_id = ?`
	return scanBooking(r.db.QueryRowContext(ctx, q, code, providerID))
}

// GetByCodeForProviderTx is GetByCodeForProvider inside an existing
// transaction, used by the settlement workflow so the guard checks and
// the settle write observe the same row.
func (r *BookingRepo) GetByCodeForProviderTx(ctx context.Context, tx *sql.Tx, code string, providerID uint64) (*model.Booking, error) {
	code = utils.NormalizeBookingCode(code)
	if code == "" {
		return nil, sql.ErrNoRows
	}
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE code = ? AND provider_id = ?`
	return scanBooking(tx.QueryRowContext(ctx, q, code, providerID))
}

// GetByIDForPatient returns a booking owned by the given patient.  It
// returns sql.ErrNoRows when the booking does not exist and
// ErrForbidden when it belongs to a different patient.
func (r *BookingRepo) GetByIDForPatient(ctx context.Context, bookingID, patientID uint64) (*model.Booking, error) {
	b, err := r.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PatientID != patientID {
		return nil, ErrForbidden
	}
	return b, nil
}

// GetByIDForProvider returns a booking owned by the given provider.
// Ownership violations yield ErrForbidden.
func (r *BookingRepo) GetByIDForProvider(ctx context.Context, bookingID, providerID uint64) (*model.Booking, error) {
	b, err := r.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, ErrForbidden
	}
	return b, nil
}

// GetByID fetches a booking without an ownership check; callers that
// act on behalf of a tenant must use the scoped variants instead.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(r.db.QueryRowContext(ctx, q, bookingID))
}

// GetByIDTx is GetByID within an existing transaction.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(tx.QueryRowContext(ctx, q, bookingID))
}

// ListByPatient returns the patient's bookings, newest first.
func (r *BookingRepo) ListByPatient(ctx context.Context, patientID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE patient_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, patientID)
}

// ListByProvider returns the provider's bookings, newest first.  An
// optional status filters the list; an empty status returns everything.
func (r *BookingRepo) ListByProvider(ctx context.Context, providerID uint64, status string) ([]model.Booking, error) {
	if status != "" {
		const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE provider_id = ? AND status = ? ORDER BY created_at DESC`
		return r.list(ctx, q, providerID, status)
	}
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE provider_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, providerID)
}

func (r *BookingRepo) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProcedures returns the requested procedure lines of a booking
// ordered by id, so the check-in checklist renders deterministically.
func (r *BookingRepo) ListProcedures(ctx context.Context, bookingID uint64) ([]model.BookingProcedure, error) {
	const q = `SELECT id, booking_id, name, quantity, confirmed
			   FROM booking_procedures WHERE booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BookingProcedure, 0)
	for rows.Next() {
		var p model.BookingProcedure
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Name, &p.Quantity, &p.Confirmed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProceduresTx is ListProcedures within an existing transaction.
func (r *BookingRepo) ListProceduresTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.BookingProcedure, error) {
	const q = `SELECT id, booking_id, name, quantity, confirmed
			   FROM booking_procedures WHERE booking_id = ? ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BookingProcedure, 0)
	for rows.Next() {
		var p model.BookingProcedure
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Name, &p.Quantity, &p.Confirmed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus performs a guarded status write: the row is updated only
// while its status still equals the one the lifecycle decision was made
// against.  Zero affected rows means another request won the race and
// the caller must re-read and decide again (ErrStatusChanged).  An
// optional quote amount is written together with the QUOTED status; a
// deposit amount together with DEPOSIT_PAID.
func (r *BookingRepo) UpdateStatus(ctx context.Context, bookingID uint64, fromStatus, toStatus string, quoteCents, depositCents *int64) error {
	return updateBookingStatus(ctx, r.db, bookingID, fromStatus, toStatus, quoteCents, depositCents)
}

// UpdateStatusTx is UpdateStatus within an existing transaction, used
// when the status change must commit together with other writes.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, bookingID uint64, fromStatus, toStatus string, quoteCents, depositCents *int64) error {
	return updateBookingStatus(ctx, tx, bookingID, fromStatus, toStatus, quoteCents, depositCents)
}

func updateBookingStatus(ctx context.Context, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, bookingID uint64, fromStatus, toStatus string, quoteCents, depositCents *int64) error {
	var (
		res sql.Result
		err error
	)
	switch {
	case quoteCents != nil:
		const q = `UPDATE bookings SET status = ?, quoted_price_cents = ? WHERE id = ? AND status = ?`
		res, err = ex.ExecContext(ctx, q, toStatus, *quoteCents, bookingID, fromStatus)
	case depositCents != nil:
		const q = `UPDATE bookings SET status = ?, deposit_cents = ? WHERE id = ? AND status = ?`
		res, err = ex.ExecContext(ctx, q, toStatus, *depositCents, bookingID, fromStatus)
	default:
		const q = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
		res, err = ex.ExecContext(ctx, q, toStatus, bookingID, fromStatus)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// SettleTx performs the check-in compare-and-swap.  The UPDATE only
// matches while the booking is not yet checked in and not cancelled, so
// under concurrent settlement attempts exactly one caller gets a row
// and every other caller gets ErrStatusChanged and must re-read to
// report the precise guard failure.  The selected procedure lines are
// marked confirmed in the same transaction.
func (r *BookingRepo) SettleTx(ctx context.Context, tx *sql.Tx, bookingID, operatorID uint64, confirmedProcedureIDs []uint64, totalCents, commissionCents int64, at time.Time) error {
	const q = `UPDATE bookings
			   SET status = ?, checked_in = 1, checked_in_at = ?, checked_in_by = ?,
				   confirmed_total_cents = ?, commission_cents = ?
			   WHERE id = ? AND checked_in = 0 AND status <> ?`
	res, err := tx.ExecContext(ctx, q,
		model.StatusCompleted, at.UTC(), operatorID,
		totalCents, commissionCents,
		bookingID, model.StatusCancelled,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	if len(confirmedProcedureIDs) > 0 {
		query := `UPDATE booking_procedures SET confirmed = 1 WHERE booking_id = ? AND id IN (`
		args := make([]any, 0, len(confirmedProcedureIDs)+1)
		args = append(args, bookingID)
		placeholders := make([]string, 0, len(confirmedProcedureIDs))
		for _, id := range confirmedProcedureIDs {
			placeholders = append(placeholders, "?")
			args = append(args, id)
		}
		query += strings.Join(placeholders, ",") + ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// isDuplicateKey reports whether the error is a MySQL duplicate-key
// violation (error 1062).
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
