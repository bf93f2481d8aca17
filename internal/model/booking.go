package model

import "time"

// Booking statuses as stored in bookings.status.  The lifecycle package
// owns the legal transitions between them; repositories and handlers
// must never write a status that did not come out of a lifecycle
// decision.
const (
	StatusInquiry           = "INQUIRY"
	StatusProviderResponded = "PROVIDER_RESPONDED"
	StatusQuoted            = "QUOTED"
	StatusDepositPaid       = "DEPOSIT_PAID"
	StatusConfirmed         = "CONFIRMED"
	StatusCompleted         = "COMPLETED"
	StatusCancelled         = "CANCELLED"
)

// Booking records a patient's engagement with a provider from first
// inquiry through check-in.  It aggregates the requested procedures,
// the negotiated prices and the settlement result.
//
// Fields:
//  ID                  – primary key identifier.
//  Code                – short check-in code, unique per provider.
//  PatientID           – patient who opened the inquiry.
//  ProviderID          – provider the inquiry is addressed to.
//  Status              – lifecycle status (see constants above).
//  QuotedPriceCents    – provider's quote, nil until quoted.
//  DepositCents        – deposit confirmed by the payment processor.
//  CommissionRateBps   – commission rate snapshot in basis points.
//  ConfirmedTotalCents – total billed at check-in, set exactly once.
//  CommissionCents     – derived commission, set together with the total.
//  CheckedIn           – whether settlement has happened.
//  CheckedInAt         – settlement timestamp (UTC).
//  CheckedInBy         – operator who performed the check-in.
//  CreatedAt           – creation timestamp.
//  UpdatedAt           – last update timestamp.
type Booking struct {
	ID                  uint64     // bookings.id
	Code                string     // bookings.code
	PatientID           uint64     // bookings.patient_id
	ProviderID          uint64     // bookings.provider_id
	Status              string     // bookings.status
	QuotedPriceCents    *int64     // bookings.quoted_price_cents (nullable)
	DepositCents        *int64     // bookings.deposit_cents (nullable)
	CommissionRateBps   int32      // bookings.commission_rate_bps
	ConfirmedTotalCents *int64     // bookings.confirmed_total_cents (nullable)
	CommissionCents     *int64     // bookings.commission_cents (nullable)
	CheckedIn           bool       // bookings.checked_in
	CheckedInAt         *time.Time // bookings.checked_in_at (nullable)
	CheckedInBy         *uint64    // bookings.checked_in_by (nullable)
	CreatedAt           time.Time  // bookings.created_at
	UpdatedAt           time.Time  // bookings.updated_at
}

// BookingProcedure is one line of the requested procedure list.  The
// Confirmed flag is written only during settlement, when the operator
// marks which of the requested procedures were actually performed.
//
// Fields:
//  ID        – primary key identifier.
//  BookingID – owning booking.
//  Name      – procedure name as entered by the patient.
//  Quantity  – requested quantity (at least 1).
//  Confirmed – selected at check-in.
type BookingProcedure struct {
	ID        uint64 // booking_procedures.id
	BookingID uint64 // booking_procedures.booking_id
	Name      string // booking_procedures.name
	Quantity  uint32 // booking_procedures.quantity
	Confirmed bool   // booking_procedures.confirmed
}
