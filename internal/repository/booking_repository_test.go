package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medivoyage/booking-api/internal/model"
)

var bookingCols = []string{
	"id", "code", "patient_id", "provider_id", "status",
	"quoted_price_cents", "deposit_cents", "commission_rate_bps",
	"confirmed_total_cents", "commission_cents",
	"checked_in", "checked_in_at", "checked_in_by", "created_at", "updated_at",
}

func bookingRow(id uint64, code string, patientID, providerID uint64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(bookingCols).AddRow(
		id, code, patientID, providerID, status,
		nil, nil, int32(1500),
		nil, nil,
		false, nil, nil, now, now,
	)
}

func TestGetByCodeForProviderNormalizesAndScopes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	// raw input is messy; the query must see the normalized code
	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE code = \? AND provider_id = \?`).
		WithArgs("AB2CD3EF", uint64(7)).
		WillReturnRows(bookingRow(1, "AB2CD3EF", 3, 7, model.StatusConfirmed))

	b, err := repo.GetByCodeForProvider(context.Background(), "  ab2cd3ef \n", 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.ID)
	assert.Equal(t, "AB2CD3EF", b.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCodeForProviderWrongProvider(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE code = \? AND provider_id = \?`).
		WithArgs("AB2CD3EF", uint64(8)).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByCodeForProvider(context.Background(), "AB2CD3EF", 8)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetByCodeForProviderEmptyCode(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	// never reaches the database
	_, err = repo.GetByCodeForProvider(context.Background(), "   ", 7)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetByIDForPatientOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \?`).
		WithArgs(uint64(1)).
		WillReturnRows(bookingRow(1, "AB2CD3EF", 3, 7, model.StatusInquiry))

	_, err = repo.GetByIDForPatient(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateStatusGuardedWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	mock.ExpectExec(`UPDATE bookings SET status = \? WHERE id = \? AND status = \?`).
		WithArgs(model.StatusProviderResponded, uint64(1), model.StatusInquiry).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatus(context.Background(), 1, model.StatusInquiry, model.StatusProviderResponded, nil, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	mock.ExpectExec(`UPDATE bookings SET status = \? WHERE id = \? AND status = \?`).
		WithArgs(model.StatusProviderResponded, uint64(1), model.StatusInquiry).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), 1, model.StatusInquiry, model.StatusProviderResponded, nil, nil)
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestUpdateStatusWritesQuoteWithStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)

	quote := int64(250000)
	mock.ExpectExec(`UPDATE bookings SET status = \?, quoted_price_cents = \? WHERE id = \? AND status = \?`).
		WithArgs(model.StatusQuoted, quote, uint64(1), model.StatusProviderResponded).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatus(context.Background(), 1, model.StatusProviderResponded, model.StatusQuoted, &quote, nil)
	assert.NoError(t, err)
}

func TestSettleTxCompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs(model.StatusCompleted, at, uint64(42), int64(100000), int64(15000), uint64(1), model.StatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE booking_procedures SET confirmed = 1`).
		WithArgs(uint64(1), uint64(10), uint64(11)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.SettleTx(context.Background(), tx, 1, 42, []uint64{10, 11}, 100000, 15000, at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleTxLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookingRepo(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	// another settle or a cancellation got there first: zero rows match
	mock.ExpectExec(`UPDATE bookings`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.SettleTx(context.Background(), tx, 1, 42, nil, 100000, 15000, at)
	assert.ErrorIs(t, err, ErrStatusChanged)
}
