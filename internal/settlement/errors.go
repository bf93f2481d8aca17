package settlement

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBookingNotFound covers both an unknown code and a code that
	// belongs to a different provider; the two cases are deliberately
	// indistinguishable to the caller.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrBookingCancelled is returned when the resolved booking was
	// cancelled; cancelled bookings can never be settled.
	ErrBookingCancelled = errors.New("booking is cancelled")

	// ErrInvalidTotal is returned before any write when the confirmed
	// total is negative.
	ErrInvalidTotal = errors.New("confirmed total must not be negative")

	// ErrUnknownProcedure is returned before any write when the
	// confirmed selection references a procedure id that is not part of
	// the booking's requested list.  Procedures performed but never
	// requested must be added to the requested list first; they cannot
	// be invented at the check-in desk.
	ErrUnknownProcedure = errors.New("confirmed procedure not in requested list")
)

// AlreadyCheckedInError reports that settlement already happened.  It
// carries the original check-in facts so the client can show who
// checked the patient in and when, instead of a generic failure.
// Repeated settle calls are therefore safe: nothing changes and the
// caller learns the recorded state.
type AlreadyCheckedInError struct {
	At time.Time // original check-in timestamp (UTC)
	By uint64    // operator who performed the original check-in
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("booking already checked in at %s by operator %d", e.At.Format(time.RFC3339), e.By)
}
