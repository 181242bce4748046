package fight

import (
	"errors"
	"fmt"
)

// RejectReason is the machine-readable code carried by a Rejection.
type RejectReason string

const (
	// RejectFightEnded: the encounter was archived; no intent may apply.
	RejectFightEnded RejectReason = "fight_ended"
	// RejectUnknownCombatant: the intent names a combatant that never joined.
	RejectUnknownCombatant RejectReason = "unknown_combatant"
	// RejectCombatantRemoved: the combatant left the fight before the intent
	// arrived. Clients should re-fetch the snapshot and retry if they want.
	RejectCombatantRemoved RejectReason = "combatant_removed"
	// RejectDuplicateCombatant: the character already holds a shot slot.
	RejectDuplicateCombatant RejectReason = "duplicate_combatant"
	// RejectInvalidIntent: the intent is malformed or logically impossible.
	RejectInvalidIntent RejectReason = "invalid_intent"
)

// Rejection is a structured refusal. It never accompanies a state change:
// a rejected intent leaves the encounter exactly as it found it.
type Rejection struct {
	Reason  RejectReason `json:"reason"`
	Message string       `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}
