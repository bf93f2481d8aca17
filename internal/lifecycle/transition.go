// Package lifecycle is the single authority over booking status
// transitions.  It is a pure decision layer: AttemptTransition never
// touches the database or the message broker, it only answers whether
// a requested status change is legal, who may perform it and which
// notification should go out if it happens.  Handlers and services
// persist the decision afterwards; writing bookings.status without a
// lifecycle decision is a bug.
package lifecycle

import (
	"errors"

	"github.com/medivoyage/booking-api/internal/model"
)

// Actor identifies who is requesting a transition.  ActorPayment is
// the payment-processor callback path; ActorSystem is internal
// machinery such as the settlement workflow.
const (
	ActorPatient  = "PATIENT"
	ActorProvider = "PROVIDER"
	ActorAdmin    = "ADMIN"
	ActorPayment  = "PAYMENT"
	ActorSystem   = "SYSTEM"
)

// Notification types emitted on successful transitions.  The
// dispatcher owns templating and delivery; these are just routing
// keys.  NotifyInquiryReceived is not produced by a transition: it is
// published when the booking is first created.
const (
	NotifyInquiryReceived   = "inquiry_received"
	NotifyProviderResponded = "provider_responded"
	NotifyQuoteReceived     = "quote_received"
	NotifyDepositPaid       = "deposit_paid"
	NotifyTripConfirmed     = "trip_confirmed"
	NotifyBookingCompleted  = "booking_completed"
)

// Recipient kinds for notifications.
const (
	RecipientPatient  = "PATIENT"
	RecipientProvider = "PROVIDER"
)

var (
	// ErrIllegalTransition is returned when the requested status is not
	// reachable from the current status, including attempts to skip
	// intermediate states.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrTerminalState is returned when the booking is already COMPLETED
	// or CANCELLED and the request is not the idempotent no-op of
	// requesting the current status again.
	ErrTerminalState = errors.New("booking is in a terminal state")

	// ErrActorNotAllowed is returned when the edge exists in the graph
	// but the requesting actor may not trigger it.
	ErrActorNotAllowed = errors.New("actor may not perform this transition")
)

// Decision is the outcome of a successful transition request.  NoOp is
// set when the request was an idempotent repeat of the current status;
// in that case Notify is empty and nothing should be persisted.
type Decision struct {
	Next      string // status to persist
	Notify    string // notification type to dispatch, empty for none
	Recipient string // who receives the notification
	NoOp      bool   // request repeated the current status
}

// edge describes one legal transition: which actors may trigger it and
// the notification dispatched once it is persisted.
type edge struct {
	actors    map[string]bool
	notify    string
	recipient string
}

func actorSet(actors ...string) map[string]bool {
	m := make(map[string]bool, len(actors))
	for _, a := range actors {
		m[a] = true
	}
	return m
}

// transitions is the full graph.  Forward edges advance one step at a
// time; CANCELLED is reachable from every non-terminal state.  The
// settlement workflow is the only caller allowed to complete a
// booking, hence ActorSystem on the final edge.
var transitions = map[string]map[string]edge{
	model.StatusInquiry: {
		model.StatusProviderResponded: {
			actors:    actorSet(ActorProvider),
			notify:    NotifyProviderResponded,
			recipient: RecipientPatient,
		},
	},
	model.StatusProviderResponded: {
		model.StatusQuoted: {
			actors:    actorSet(ActorProvider),
			notify:    NotifyQuoteReceived,
			recipient: RecipientPatient,
		},
	},
	model.StatusQuoted: {
		model.StatusDepositPaid: {
			actors:    actorSet(ActorPayment, ActorAdmin),
			notify:    NotifyDepositPaid,
			recipient: RecipientProvider,
		},
	},
	model.StatusDepositPaid: {
		model.StatusConfirmed: {
			actors:    actorSet(ActorPayment, ActorAdmin),
			notify:    NotifyTripConfirmed,
			recipient: RecipientPatient,
		},
	},
	model.StatusConfirmed: {
		model.StatusCompleted: {
			actors:    actorSet(ActorSystem),
			notify:    NotifyBookingCompleted,
			recipient: RecipientPatient,
		},
	},
}

// cancelActors may cancel a booking from any non-terminal state.
var cancelActors = actorSet(ActorPatient, ActorProvider, ActorAdmin)

// IsTerminal reports whether no further transition is legal from the
// given status.
func IsTerminal(status string) bool {
	return status == model.StatusCompleted || status == model.StatusCancelled
}

// IsValidStatus reports whether s is one of the known booking statuses.
func IsValidStatus(s string) bool {
	switch s {
	case model.StatusInquiry, model.StatusProviderResponded, model.StatusQuoted,
		model.StatusDepositPaid, model.StatusConfirmed, model.StatusCompleted,
		model.StatusCancelled:
		return true
	}
	return false
}

// AttemptTransition decides whether a booking currently in `current`
// may move to `requested` when asked by `actor`.  Requesting the
// current status again is always a successful no-op, even in terminal
// states, so that retried requests are safe.  Otherwise terminal
// states reject everything, unknown or skipping edges are illegal, and
// known edges are still subject to actor checks.
func AttemptTransition(current, requested, actor string) (Decision, error) {
	if !IsValidStatus(requested) {
		return Decision{}, ErrIllegalTransition
	}
	if requested == current {
		return Decision{Next: current, NoOp: true}, nil
	}
	if IsTerminal(current) {
		return Decision{}, ErrTerminalState
	}
	if requested == model.StatusCancelled {
		if !cancelActors[actor] {
			return Decision{}, ErrActorNotAllowed
		}
		return Decision{Next: model.StatusCancelled}, nil
	}
	e, ok := transitions[current][requested]
	if !ok {
		return Decision{}, ErrIllegalTransition
	}
	if !e.actors[actor] {
		return Decision{}, ErrActorNotAllowed
	}
	return Decision{Next: requested, Notify: e.notify, Recipient: e.recipient}, nil
}
