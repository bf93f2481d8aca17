package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medivoyage/booking-api/internal/config"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/repository"
)

var bookingSQLCols = []string{
	"id", "code", "patient_id", "provider_id", "status",
	"quoted_price_cents", "deposit_cents", "commission_rate_bps",
	"confirmed_total_cents", "commission_cents",
	"checked_in", "checked_in_at", "checked_in_by", "created_at", "updated_at",
}

func bookingSQLRow(id uint64, code string, patientID, providerID uint64, status string, rateBps int32) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(bookingSQLCols).AddRow(
		id, code, patientID, providerID, status,
		nil, nil, rateBps,
		nil, nil,
		false, nil, nil, now, now,
	)
}

var userSQLCols = []string{
	"id", "email", "password_hash", "role", "clinic_name", "commission_rate_bps",
	"is_active", "created_at", "updated_at",
}

func providerSQLRow(id uint64, rateBps any) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userSQLCols).AddRow(
		id, "clinic@example.com", "x", model.RoleProvider, "Smile Dental", rateBps,
		true, now, now,
	)
}

func newInquiryContext(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings")
	c.Set("user_id", uint64(3))
	return c, rec
}

func newPatientHandler(t *testing.T) (*PatientHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := config.Config{DefaultCommissionBps: 1200}
	h := NewPatientHandler(cfg,
		repository.NewBookingRepo(db),
		repository.NewMessageRepo(db),
		repository.NewUserRepo(db))
	return h, mock
}

func expectInquiryWrites(mock sqlmock.Sqlmock, wantRate int32) {
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bookings`).
		WithArgs(sqlmock.AnyArg(), uint64(3), uint64(7), model.StatusInquiry, wantRate).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(`INSERT INTO booking_procedures`).
		WithArgs(uint64(11), "Dental implant", uint32(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \?`).
		WithArgs(uint64(11)).
		WillReturnRows(bookingSQLRow(11, "AB2CD3EF", 3, 7, model.StatusInquiry, wantRate))
	mock.ExpectCommit()
}

// A provider seeded without a negotiated rate must not end up with a
// zero-commission booking: the platform default applies.
func TestCreateInquiryDefaultsCommissionRate(t *testing.T) {
	h, mock := newPatientHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\? LIMIT 1`).
		WithArgs(uint64(7)).
		WillReturnRows(providerSQLRow(7, nil))
	expectInquiryWrites(mock, 1200)

	c, rec := newInquiryContext(t, `{"provider_id":7,"procedures":[{"name":"Dental implant","quantity":2}]}`)
	require.NoError(t, h.CreateInquiry(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"commission_rate_bps":1200`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInquiryUsesNegotiatedRate(t *testing.T) {
	h, mock := newPatientHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\? LIMIT 1`).
		WithArgs(uint64(7)).
		WillReturnRows(providerSQLRow(7, int32(900)))
	expectInquiryWrites(mock, 900)

	c, rec := newInquiryContext(t, `{"provider_id":7,"procedures":[{"name":"Dental implant","quantity":2}]}`)
	require.NoError(t, h.CreateInquiry(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"commission_rate_bps":900`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
