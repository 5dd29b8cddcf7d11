package models

import (
	"fmt"

	dErrors "evidenceledger/pkg/domain-errors"
)

// Action names a ledger operation that may change state.
type Action string

const (
	ActionCreate            Action = "create_draft"
	ActionUpdateMetadata    Action = "update_metadata"
	ActionAttachPayload     Action = "attach_payload"
	ActionSeal              Action = "seal"
	ActionResolveQuarantine Action = "resolve_quarantine"
)

// Transition is the from/to pair recorded for every audited action.
type Transition struct {
	From   LedgerState `json:"from"`
	To     LedgerState `json:"to"`
	Action Action      `json:"action"`
}

// The only legal edges:
//
//	DRAFT --attach_payload--> READY_TO_SEAL
//	READY_TO_SEAL --seal--> SEALED | QUARANTINED
//	QUARANTINED --resolve_quarantine--> SEALED
//
// update_metadata keeps the state and is allowed while the record is mutable.
var transitions = map[Action]map[LedgerState][]LedgerState{
	ActionUpdateMetadata: {
		StateDraft:       {StateDraft},
		StateReadyToSeal: {StateReadyToSeal},
	},
	ActionAttachPayload: {
		StateDraft: {StateReadyToSeal},
	},
	ActionSeal: {
		StateReadyToSeal: {StateSealed, StateQuarantined},
	},
	ActionResolveQuarantine: {
		StateQuarantined: {StateSealed},
	},
}

// CheckTransition returns nil when action may move a record from "from" to
// "to". Attempts against frozen records are IMMUTABILITY_CONFLICT; sealing a
// draft without payload is MISSING_PAYLOAD; everything else is
// INVALID_TRANSITION.
func CheckTransition(from LedgerState, action Action, to LedgerState) error {
	for _, allowed := range transitions[action][from] {
		if allowed == to {
			return nil
		}
	}
	if _, fromAllowed := transitions[action][from]; fromAllowed {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("%s cannot move a %s record to %s", action, from, to))
	}
	return RejectAction(from, action)
}

// RejectAction explains why action is not available in state from.
func RejectAction(from LedgerState, action Action) error {
	switch {
	case action == ActionResolveQuarantine && from == StateSealed:
		return dErrors.New(dErrors.CodeImmutabilityConflict, "record is already sealed")
	case action == ActionResolveQuarantine:
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("only QUARANTINED records can be resolved, record is %s", from))
	case from.IsSealedOrQuarantined():
		return dErrors.New(dErrors.CodeImmutabilityConflict,
			fmt.Sprintf("record is %s and can no longer change", from))
	case action == ActionSeal && from == StateDraft:
		return dErrors.New(dErrors.CodeMissingPayload, "attach a payload before sealing")
	default:
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("%s is not allowed while the record is %s", action, from))
	}
}

// Allows reports whether action has any legal edge out of from.
func Allows(from LedgerState, action Action) bool {
	_, ok := transitions[action][from]
	return ok
}
