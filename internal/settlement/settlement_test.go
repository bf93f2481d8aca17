package settlement

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medivoyage/booking-api/internal/lifecycle"
	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/queue"
	"github.com/medivoyage/booking-api/internal/repository"
	"github.com/medivoyage/booking-api/internal/utils"
)

// memStore is an in-memory Store with the same compare-and-swap
// semantics as the SQL implementation, so the race behavior under test
// matches production.
type memStore struct {
	mu         sync.Mutex
	bookings   map[uint64]*model.Booking
	procedures map[uint64][]model.BookingProcedure
	invoices   map[uint64]*model.CommissionInvoice // keyed by booking id
	nextInvID  uint64
}

func newMemStore() *memStore {
	return &memStore{
		bookings:   make(map[uint64]*model.Booking),
		procedures: make(map[uint64][]model.BookingProcedure),
		invoices:   make(map[uint64]*model.CommissionInvoice),
		nextInvID:  1,
	}
}

func (s *memStore) ResolveByCode(_ context.Context, code string, providerID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = utils.NormalizeBookingCode(code)
	for _, b := range s.bookings {
		if b.Code == code && b.ProviderID == providerID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) BookingByID(_ context.Context, bookingID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) RequestedProcedures(_ context.Context, bookingID uint64) ([]model.BookingProcedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BookingProcedure, len(s.procedures[bookingID]))
	copy(out, s.procedures[bookingID])
	return out, nil
}

func (s *memStore) Settle(_ context.Context, w SettleWrite) (*model.Booking, *model.CommissionInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[w.BookingID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	// same predicate as the SQL UPDATE ... WHERE checked_in=0 AND status<>'CANCELLED'
	if b.CheckedIn || b.Status == model.StatusCancelled {
		return nil, nil, repository.ErrStatusChanged
	}
	if _, exists := s.invoices[w.BookingID]; exists {
		return nil, nil, repository.ErrConflict
	}
	at := w.At
	operator := w.OperatorID
	total := w.TotalCents
	commission := w.CommissionCents
	b.Status = model.StatusCompleted
	b.CheckedIn = true
	b.CheckedInAt = &at
	b.CheckedInBy = &operator
	b.ConfirmedTotalCents = &total
	b.CommissionCents = &commission
	selected := make(map[uint64]bool, len(w.ConfirmedProcedureIDs))
	for _, id := range w.ConfirmedProcedureIDs {
		selected[id] = true
	}
	lines := s.procedures[w.BookingID]
	for i := range lines {
		if selected[lines[i].ID] {
			lines[i].Confirmed = true
		}
	}
	inv := &model.CommissionInvoice{
		ID:                  s.nextInvID,
		BookingID:           b.ID,
		ProviderID:          b.ProviderID,
		ProcedureTotalCents: total,
		CommissionRateBps:   b.CommissionRateBps,
		CommissionCents:     commission,
		Status:              model.InvoicePending,
		CreatedAt:           at,
	}
	s.nextInvID++
	s.invoices[b.ID] = inv
	bcp, icp := *b, *inv
	return &bcp, &icp, nil
}

func (s *memStore) CompletedWithoutInvoice(_ context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, b := range s.bookings {
		if b.Status == model.StatusCompleted && s.invoices[id] == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) BackfillInvoice(_ context.Context, b *model.Booking) (*model.CommissionInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[b.ID]; exists {
		return nil, repository.ErrConflict
	}
	var total, commission int64
	if b.ConfirmedTotalCents != nil {
		total = *b.ConfirmedTotalCents
	}
	if b.CommissionCents != nil {
		commission = *b.CommissionCents
	} else {
		commission = model.CommissionCents(total, b.CommissionRateBps)
	}
	inv := &model.CommissionInvoice{
		ID:                  s.nextInvID,
		BookingID:           b.ID,
		ProviderID:          b.ProviderID,
		ProcedureTotalCents: total,
		CommissionRateBps:   b.CommissionRateBps,
		CommissionCents:     commission,
		Status:              model.InvoicePending,
		CreatedAt:           time.Now().UTC(),
	}
	s.nextInvID++
	s.invoices[b.ID] = inv
	cp := *inv
	return &cp, nil
}

const (
	testCode       = "AB2CD3EF"
	testProviderID = uint64(7)
	testPatientID  = uint64(3)
	testOperatorID = uint64(42)
)

func seedBooking(store *memStore, status string) *model.Booking {
	b := &model.Booking{
		ID:                1,
		Code:              testCode,
		PatientID:         testPatientID,
		ProviderID:        testProviderID,
		Status:            status,
		CommissionRateBps: 1500,
	}
	store.bookings[b.ID] = b
	store.procedures[b.ID] = []model.BookingProcedure{
		{ID: 1, BookingID: 1, Name: "Dental implant", Quantity: 2},
		{ID: 2, BookingID: 1, Name: "Whitening", Quantity: 1},
		{ID: 3, BookingID: 1, Name: "Consultation", Quantity: 1},
	}
	return b
}

type notifyRecorder struct {
	mu     sync.Mutex
	events []queue.NotificationEvent
	err    error
}

func (n *notifyRecorder) publish(_ context.Context, e queue.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func TestSettleHappyPath(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	rec := &notifyRecorder{}
	svc := NewService(store, rec.publish)

	res, err := svc.Settle(context.Background(), "  ab2cd3ef ", testProviderID, testOperatorID, []uint64{1, 2, 2}, 100000)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.Booking.Status)
	assert.True(t, res.Booking.CheckedIn)
	require.NotNil(t, res.Booking.CheckedInBy)
	assert.Equal(t, testOperatorID, *res.Booking.CheckedInBy)
	require.NotNil(t, res.Booking.ConfirmedTotalCents)
	assert.Equal(t, int64(100000), *res.Booking.ConfirmedTotalCents)
	require.NotNil(t, res.Booking.CommissionCents)
	assert.Equal(t, int64(15000), *res.Booking.CommissionCents)

	require.NotNil(t, res.Invoice)
	assert.Equal(t, model.InvoicePending, res.Invoice.Status)
	assert.Equal(t, int64(15000), res.Invoice.CommissionCents)
	assert.Equal(t, int64(100000), res.Invoice.ProcedureTotalCents)
	assert.Equal(t, testProviderID, res.Invoice.ProviderID)

	// two of three selected, duplicates collapsed
	lines, _ := store.RequestedProcedures(context.Background(), 1)
	confirmed := 0
	for _, p := range lines {
		if p.Confirmed {
			confirmed++
		}
	}
	assert.Equal(t, 2, confirmed)

	require.Len(t, rec.events, 1)
	assert.Equal(t, lifecycle.NotifyBookingCompleted, rec.events[0].Type)
	assert.Equal(t, testPatientID, rec.events[0].RecipientID)
}

func TestSettleRepeatReportsOriginalCheckIn(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	svc := NewService(store, nil)

	first, err := svc.Settle(context.Background(), testCode, testProviderID, testOperatorID, nil, 50000)
	require.NoError(t, err)

	_, err = svc.Settle(context.Background(), testCode, testProviderID, uint64(99), nil, 50000)
	var checked *AlreadyCheckedInError
	require.ErrorAs(t, err, &checked)
	assert.Equal(t, testOperatorID, checked.By)
	require.NotNil(t, first.Booking.CheckedInAt)
	assert.Equal(t, first.Booking.CheckedInAt.Unix(), checked.At.Unix())
}

func TestSettleCancelledBooking(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusCancelled)
	svc := NewService(store, nil)

	_, err := svc.Settle(context.Background(), testCode, testProviderID, testOperatorID, nil, 1000)
	assert.ErrorIs(t, err, ErrBookingCancelled)
}

func TestSettleZeroTotal(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	svc := NewService(store, nil)

	res, err := svc.Settle(context.Background(), testCode, testProviderID, testOperatorID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *res.Booking.CommissionCents)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, int64(0), res.Invoice.CommissionCents)
	assert.Equal(t, model.InvoicePending, res.Invoice.Status)
}

func TestSettleValidation(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Settle(ctx, testCode, testProviderID, testOperatorID, nil, -1)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	_, err = svc.Settle(ctx, testCode, testProviderID, testOperatorID, []uint64{1, 999}, 1000)
	assert.ErrorIs(t, err, ErrUnknownProcedure)

	// validation failures must not have settled anything
	b, _ := store.BookingByID(ctx, 1)
	assert.False(t, b.CheckedIn)
	assert.Equal(t, model.StatusConfirmed, b.Status)
}

func TestSettleScoping(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Settle(ctx, "ZZZZZZZZ", testProviderID, testOperatorID, nil, 1000)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	// right code, wrong provider: indistinguishable from unknown
	_, err = svc.Settle(ctx, testCode, uint64(8), testOperatorID, nil, 1000)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestSettleRequiresConfirmedStatus(t *testing.T) {
	for _, status := range []string{
		model.StatusInquiry, model.StatusProviderResponded,
		model.StatusQuoted, model.StatusDepositPaid,
	} {
		store := newMemStore()
		seedBooking(store, status)
		svc := NewService(store, nil)
		_, err := svc.Settle(context.Background(), testCode, testProviderID, testOperatorID, nil, 1000)
		assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition, "status %s", status)
	}
}

func TestSettleNotifyFailureDoesNotFailSettlement(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	rec := &notifyRecorder{err: errors.New("broker down")}
	svc := NewService(store, rec.publish)

	res, err := svc.Settle(context.Background(), testCode, testProviderID, testOperatorID, nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Booking.Status)
}

func TestSettleConcurrentDoubleSettle(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusConfirmed)
	svc := NewService(store, nil)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), testCode, testProviderID, uint64(100+i), nil, 100000)
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		default:
			var checked *AlreadyCheckedInError
			if errors.As(err, &checked) {
				conflicts++
			} else {
				t.Fatalf("unexpected race outcome: %v", err)
			}
		}
	}
	assert.Equal(t, 1, successes, "exactly one settle must win")
	assert.Equal(t, 1, conflicts, "the loser must see AlreadyCheckedIn")

	b, _ := store.BookingByID(context.Background(), 1)
	assert.Equal(t, model.StatusCompleted, b.Status)
	assert.Len(t, store.invoices, 1)
}

func TestLookupAppliesNoGuards(t *testing.T) {
	store := newMemStore()
	seedBooking(store, model.StatusCancelled)
	svc := NewService(store, nil)

	b, procedures, err := svc.Lookup(context.Background(), testCode, testProviderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, b.Status)
	assert.Len(t, procedures, 3)

	_, _, err = svc.Lookup(context.Background(), testCode, uint64(8))
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestReconcileInvoicesBackfills(t *testing.T) {
	store := newMemStore()
	b := seedBooking(store, model.StatusCompleted)
	total := int64(40000)
	b.ConfirmedTotalCents = &total
	b.CheckedIn = true

	svc := NewService(store, nil)
	n, err := svc.ReconcileInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv := store.invoices[b.ID]
	require.NotNil(t, inv)
	assert.Equal(t, int64(40000), inv.ProcedureTotalCents)
	assert.Equal(t, model.CommissionCents(40000, 1500), inv.CommissionCents)
	assert.Equal(t, model.InvoicePending, inv.Status)

	// a second sweep finds nothing to repair
	n, err = svc.ReconcileInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
