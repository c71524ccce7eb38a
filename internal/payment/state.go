package payment

import (
	"fmt"

	"regflow/internal/model"
)

// ErrIllegalTransition is wrapped by Transition for any move the state
// machine does not allow.
var ErrIllegalTransition = fmt.Errorf("illegal payment status transition")

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case model.StatusPaid, model.StatusExpired, model.StatusFree:
		return true
	}
	return false
}

// CanTransition reports whether moving a payment from one status to another
// is legal. Re-applying the free override is allowed as a no-op.
func CanTransition(from, to string) bool {
	if from == to && to == model.StatusFree {
		return true
	}
	switch from {
	case model.StatusNotCreated:
		return to == model.StatusPending || to == model.StatusFree
	case model.StatusPending:
		return to == model.StatusPaid || to == model.StatusExpired ||
			to == model.StatusFailed || to == model.StatusFree
	}
	return false
}

// Transition applies a status change in place, rejecting anything the
// transition table does not allow.
func Transition(p *model.Payment, to string) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %q -> %q (tx %s)", ErrIllegalTransition, p.Status, to, p.TransactionID)
	}
	p.Status = to
	return nil
}

// Rank orders statuses for divergence repair: when the two aggregate copies
// of a payment disagree, the higher-ranked status wins.
func Rank(status string) int {
	switch status {
	case model.StatusPaid, model.StatusExpired, model.StatusFree, model.StatusFailed:
		return 2
	case model.StatusPending:
		return 1
	}
	return 0
}
