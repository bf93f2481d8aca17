package model

import "time"

// Invoice payment statuses as stored in commission_invoices.status.
const (
	InvoicePending  = "PENDING"
	InvoicePaid     = "PAID"
	InvoiceDisputed = "DISPUTED"
)

// CommissionInvoice is the platform's claim on a provider for a
// completed booking.  Exactly one invoice exists per completed
// booking, enforced by a unique key on booking_id.  The monetary
// fields are snapshots taken at settlement time and never change;
// only the payment status and its timestamps may be updated.
//
// Fields:
//  ID                  – primary key identifier.
//  BookingID           – settled booking (unique).
//  ProviderID          – provider who owes the commission.
//  ProcedureTotalCents – booking's confirmed total at creation time.
//  CommissionRateBps   – rate applied, in basis points.
//  CommissionCents     – amount owed.
//  Status              – PENDING, PAID or DISPUTED.
//  DisputeReason       – reason recorded when disputed.
//  PaidAt              – when the invoice was paid (nullable).
//  CreatedAt           – creation timestamp.
type CommissionInvoice struct {
	ID                  uint64     // commission_invoices.id
	BookingID           uint64     // commission_invoices.booking_id
	ProviderID          uint64     // commission_invoices.provider_id
	ProcedureTotalCents int64      // commission_invoices.procedure_total_cents
	CommissionRateBps   int32      // commission_invoices.commission_rate_bps
	CommissionCents     int64      // commission_invoices.commission_cents
	Status              string     // commission_invoices.status
	DisputeReason       *string    // commission_invoices.dispute_reason (nullable)
	PaidAt              *time.Time // commission_invoices.paid_at (nullable)
	CreatedAt           time.Time  // commission_invoices.created_at
}
