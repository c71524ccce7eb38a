package payment

import (
	"errors"
	"testing"

	"regflow/internal/model"
)

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{model.StatusNotCreated, model.StatusPending, true},
		{model.StatusNotCreated, model.StatusFree, true},
		{model.StatusPending, model.StatusPaid, true},
		{model.StatusPending, model.StatusExpired, true},
		{model.StatusPending, model.StatusFailed, true},
		{model.StatusPending, model.StatusFree, true},
		{model.StatusFree, model.StatusFree, true},

		{model.StatusNotCreated, model.StatusPaid, false},
		{model.StatusNotCreated, model.StatusExpired, false},
		{model.StatusPaid, model.StatusPending, false},
		{model.StatusPaid, model.StatusExpired, false},
		{model.StatusPaid, model.StatusFree, false},
		{model.StatusExpired, model.StatusPaid, false},
		{model.StatusExpired, model.StatusPending, false},
		{model.StatusFree, model.StatusPaid, false},
		{model.StatusFailed, model.StatusPaid, false},
		{model.StatusPending, model.StatusNotCreated, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	p := &model.Payment{TransactionID: "123456", Status: model.StatusPaid}

	err := Transition(p, model.StatusPending)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if p.Status != model.StatusPaid {
		t.Errorf("status must not change on rejection, got %q", p.Status)
	}
}

func TestTransition_AppliesLegalMove(t *testing.T) {
	p := &model.Payment{TransactionID: "123456", Status: model.StatusPending}

	if err := Transition(p, model.StatusPaid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != model.StatusPaid {
		t.Errorf("got status %q", p.Status)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{model.StatusPaid, model.StatusExpired, model.StatusFree} {
		if !Terminal(s) {
			t.Errorf("%q must be terminal", s)
		}
	}
	for _, s := range []string{model.StatusNotCreated, model.StatusPending, model.StatusFailed} {
		if Terminal(s) {
			t.Errorf("%q must not be terminal", s)
		}
	}
}

func TestRank_PrefersMoreTerminalStatus(t *testing.T) {
	if !(Rank(model.StatusPaid) > Rank(model.StatusPending)) {
		t.Error("Paid must outrank Pending")
	}
	if !(Rank(model.StatusPending) > Rank(model.StatusNotCreated)) {
		t.Error("Pending must outrank Not created")
	}
	if Rank(model.StatusExpired) != Rank(model.StatusFree) {
		t.Error("terminal statuses rank equally")
	}
}
