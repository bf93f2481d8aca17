package lifecycle

import (
	"errors"
	"testing"

	"github.com/medivoyage/booking-api/internal/model"
)

func TestAttemptTransitionHappyPath(t *testing.T) {
	steps := []struct {
		current   string
		requested string
		actor     string
		notify    string
		recipient string
	}{
		{model.StatusInquiry, model.StatusProviderResponded, ActorProvider, NotifyProviderResponded, RecipientPatient},
		{model.StatusProviderResponded, model.StatusQuoted, ActorProvider, NotifyQuoteReceived, RecipientPatient},
		{model.StatusQuoted, model.StatusDepositPaid, ActorPayment, NotifyDepositPaid, RecipientProvider},
		{model.StatusDepositPaid, model.StatusConfirmed, ActorPayment, NotifyTripConfirmed, RecipientPatient},
		{model.StatusConfirmed, model.StatusCompleted, ActorSystem, NotifyBookingCompleted, RecipientPatient},
	}
	for _, s := range steps {
		dec, err := AttemptTransition(s.current, s.requested, s.actor)
		if err != nil {
			t.Fatalf("%s -> %s by %s: unexpected error %v", s.current, s.requested, s.actor, err)
		}
		if dec.NoOp {
			t.Fatalf("%s -> %s: unexpected no-op", s.current, s.requested)
		}
		if dec.Next != s.requested {
			t.Errorf("%s -> %s: Next = %s", s.current, s.requested, dec.Next)
		}
		if dec.Notify != s.notify || dec.Recipient != s.recipient {
			t.Errorf("%s -> %s: notification %s/%s, want %s/%s",
				s.current, s.requested, dec.Notify, dec.Recipient, s.notify, s.recipient)
		}
	}
}

func TestAttemptTransitionAdminMayConfirmPayments(t *testing.T) {
	if _, err := AttemptTransition(model.StatusQuoted, model.StatusDepositPaid, ActorAdmin); err != nil {
		t.Errorf("admin deposit confirmation: %v", err)
	}
	if _, err := AttemptTransition(model.StatusDepositPaid, model.StatusConfirmed, ActorAdmin); err != nil {
		t.Errorf("admin trip confirmation: %v", err)
	}
}

func TestAttemptTransitionNoSkipping(t *testing.T) {
	skips := [][2]string{
		{model.StatusInquiry, model.StatusQuoted},
		{model.StatusInquiry, model.StatusConfirmed},
		{model.StatusInquiry, model.StatusCompleted},
		{model.StatusProviderResponded, model.StatusDepositPaid},
		{model.StatusQuoted, model.StatusConfirmed},
		{model.StatusQuoted, model.StatusCompleted},
		{model.StatusDepositPaid, model.StatusCompleted},
		// backwards moves are just as illegal
		{model.StatusQuoted, model.StatusInquiry},
		{model.StatusConfirmed, model.StatusDepositPaid},
	}
	for _, s := range skips {
		if _, err := AttemptTransition(s[0], s[1], ActorAdmin); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: got %v, want ErrIllegalTransition", s[0], s[1], err)
		}
	}
}

func TestAttemptTransitionTerminalStates(t *testing.T) {
	for _, terminal := range []string{model.StatusCompleted, model.StatusCancelled} {
		for _, requested := range []string{
			model.StatusInquiry, model.StatusProviderResponded, model.StatusQuoted,
			model.StatusDepositPaid, model.StatusConfirmed,
		} {
			if _, err := AttemptTransition(terminal, requested, ActorAdmin); !errors.Is(err, ErrTerminalState) {
				t.Errorf("%s -> %s: got %v, want ErrTerminalState", terminal, requested, err)
			}
		}
		// the other terminal state is also unreachable
		other := model.StatusCancelled
		if terminal == model.StatusCancelled {
			other = model.StatusCompleted
		}
		if _, err := AttemptTransition(terminal, other, ActorAdmin); !errors.Is(err, ErrTerminalState) {
			t.Errorf("%s -> %s: got %v, want ErrTerminalState", terminal, other, err)
		}
	}
}

func TestAttemptTransitionIdentityNoOp(t *testing.T) {
	all := []string{
		model.StatusInquiry, model.StatusProviderResponded, model.StatusQuoted,
		model.StatusDepositPaid, model.StatusConfirmed, model.StatusCompleted,
		model.StatusCancelled,
	}
	for _, s := range all {
		dec, err := AttemptTransition(s, s, ActorPatient)
		if err != nil {
			t.Errorf("%s identity request: unexpected error %v", s, err)
			continue
		}
		if !dec.NoOp || dec.Next != s || dec.Notify != "" {
			t.Errorf("%s identity request: got %+v, want silent no-op", s, dec)
		}
	}
}

func TestAttemptTransitionCancellation(t *testing.T) {
	nonTerminal := []string{
		model.StatusInquiry, model.StatusProviderResponded, model.StatusQuoted,
		model.StatusDepositPaid, model.StatusConfirmed,
	}
	for _, s := range nonTerminal {
		for _, actor := range []string{ActorPatient, ActorProvider, ActorAdmin} {
			dec, err := AttemptTransition(s, model.StatusCancelled, actor)
			if err != nil {
				t.Errorf("%s cancel by %s: %v", s, actor, err)
				continue
			}
			if dec.Next != model.StatusCancelled {
				t.Errorf("%s cancel by %s: Next = %s", s, actor, dec.Next)
			}
		}
		for _, actor := range []string{ActorPayment, ActorSystem} {
			if _, err := AttemptTransition(s, model.StatusCancelled, actor); !errors.Is(err, ErrActorNotAllowed) {
				t.Errorf("%s cancel by %s: got %v, want ErrActorNotAllowed", s, actor, err)
			}
		}
	}
}

func TestAttemptTransitionActorGating(t *testing.T) {
	cases := []struct {
		current   string
		requested string
		actor     string
	}{
		{model.StatusInquiry, model.StatusProviderResponded, ActorPatient},
		{model.StatusProviderResponded, model.StatusQuoted, ActorPatient},
		{model.StatusProviderResponded, model.StatusQuoted, ActorAdmin},
		{model.StatusQuoted, model.StatusDepositPaid, ActorPatient},
		{model.StatusQuoted, model.StatusDepositPaid, ActorProvider},
		{model.StatusConfirmed, model.StatusCompleted, ActorProvider},
		{model.StatusConfirmed, model.StatusCompleted, ActorAdmin},
	}
	for _, tc := range cases {
		if _, err := AttemptTransition(tc.current, tc.requested, tc.actor); !errors.Is(err, ErrActorNotAllowed) {
			t.Errorf("%s -> %s by %s: got %v, want ErrActorNotAllowed", tc.current, tc.requested, tc.actor, err)
		}
	}
}

func TestAttemptTransitionUnknownStatus(t *testing.T) {
	if _, err := AttemptTransition(model.StatusInquiry, "SHIPPED", ActorAdmin); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("unknown requested status: got %v, want ErrIllegalTransition", err)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(model.StatusCompleted) || !IsTerminal(model.StatusCancelled) {
		t.Error("COMPLETED and CANCELLED must be terminal")
	}
	if IsTerminal(model.StatusConfirmed) || IsTerminal(model.StatusInquiry) {
		t.Error("non-terminal status reported terminal")
	}
}
