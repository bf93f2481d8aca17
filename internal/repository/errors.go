// Package repository defines error values that are reused across
// multiple repositories.  These sentinels allow higher layers such as
// handlers and services to distinguish between failure scenarios
// without string matching.  Repository methods return sql.ErrNoRows
// for missing rows; the booking code resolver does not distinguish
// "wrong code" from "wrong provider", so cross-tenant existence cannot
// be probed.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers should translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot proceed because of
// conflicting state, such as inserting a second commission invoice for
// a booking that already has one.  Handlers should translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrStatusChanged is returned by guarded status updates when the
// booking's status was no longer the expected one at write time.  The
// caller should re-read the booking and re-run the transition decision.
var ErrStatusChanged = errors.New("booking status changed concurrently")

// ErrInvalidStateTransition is returned by the invoice ledger when an
// invoice is not in the PENDING state required for the requested
// payment-status change.
var ErrInvalidStateTransition = errors.New("invalid invoice state transition")
