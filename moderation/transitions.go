package moderation

import (
	"fmt"
)

// ActionOp and AppealOp name the mutating operations on the two state
// machines. Every service method that changes a status consults the tables
// below before writing, so the full transition graph lives in this one file.

type ActionOp string

const (
	OpApprove ActionOp = "approve"
	OpReject  ActionOp = "reject"
	OpAppeal  ActionOp = "appeal"
	OpReverse ActionOp = "reverse"
)

type AppealOp string

const (
	OpAssign   AppealOp = "assign"
	OpUnassign AppealOp = "unassign"
	OpUphold   AppealOp = "uphold"
	OpDeny     AppealOp = "deny"
)

// actionTransitions: state x operation -> next state. A missing entry means
// the operation is illegal from that state. An APPEALED action may receive
// further appeals (from other appellants) without changing state, and a
// REJECTED action remains appealable; only REVERSED is fully terminal.
var actionTransitions = map[ActionStatus]map[ActionOp]ActionStatus{
	ActionStatusPending: {
		OpApprove: ActionStatusActive,
		OpReject:  ActionStatusRejected,
		OpAppeal:  ActionStatusAppealed,
	},
	ActionStatusActive: {
		OpAppeal: ActionStatusAppealed,
	},
	ActionStatusAppealed: {
		OpAppeal:  ActionStatusAppealed,
		OpReverse: ActionStatusReversed,
	},
	ActionStatusRejected: {
		OpAppeal: ActionStatusAppealed,
	},
	ActionStatusReversed: {},
}

var appealTransitions = map[AppealStatus]map[AppealOp]AppealStatus{
	AppealStatusPending: {
		OpAssign: AppealStatusUnderReview,
		OpUphold: AppealStatusUpheld,
		OpDeny:   AppealStatusDenied,
	},
	AppealStatusUnderReview: {
		OpUnassign: AppealStatusPending,
		OpUphold:   AppealStatusUpheld,
		OpDeny:     AppealStatusDenied,
	},
	AppealStatusUpheld: {},
	AppealStatusDenied: {},
}

// NextActionStatus returns the status an action moves to under op, or an
// InvalidTransitionError naming both the required and actual status.
func NextActionStatus(cur ActionStatus, op ActionOp) (ActionStatus, error) {
	if next, ok := actionTransitions[cur][op]; ok {
		return next, nil
	}
	return "", &InvalidTransitionError{
		Msg: fmt.Sprintf("Action must be in %s status to %s, current status: %s", actionStatusesPermitting(op), op, cur),
	}
}

// NextAppealStatus is the appeal-side equivalent of NextActionStatus.
func NextAppealStatus(cur AppealStatus, op AppealOp) (AppealStatus, error) {
	if next, ok := appealTransitions[cur][op]; ok {
		return next, nil
	}
	return "", &InvalidTransitionError{
		Msg: fmt.Sprintf("Appeal must be in %s status to %s, current status: %s", appealStatusesPermitting(op), op, cur),
	}
}

func actionStatusesPermitting(op ActionOp) string {
	order := []ActionStatus{ActionStatusPending, ActionStatusActive, ActionStatusAppealed, ActionStatusRejected, ActionStatusReversed}
	var out string
	for _, s := range order {
		if _, ok := actionTransitions[s][op]; ok {
			if out != "" {
				out += " or "
			}
			out += string(s)
		}
	}
	return out
}

func appealStatusesPermitting(op AppealOp) string {
	order := []AppealStatus{AppealStatusPending, AppealStatusUnderReview, AppealStatusUpheld, AppealStatusDenied}
	var out string
	for _, s := range order {
		if _, ok := appealTransitions[s][op]; ok {
			if out != "" {
				out += " or "
			}
			out += string(s)
		}
	}
	return out
}
