package moderation

import (
	"fmt"
)

// All errors returned by this package belong to one of the types below. They
// are recoverable by the caller: retry with corrected input, or re-fetch
// current state. Event delivery failures are deliberately absent; those are
// handled (logged and counted) inside the events package and never surface.

// NotFoundError indicates an unknown action, appeal, or moderator id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidTransitionError indicates an operation attempted from a status that
// does not permit it. The message states both the required and actual status.
type InvalidTransitionError struct {
	Msg string
}

func (e *InvalidTransitionError) Error() string {
	return e.Msg
}

// ValidationError indicates input outside its allowed bounds: reasoning or
// reason length, confidence range, or an unrecognized enum value.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// DuplicateAppealError indicates an active appeal already exists for the same
// (action, appellant) pair.
type DuplicateAppealError struct {
	ActionID    uint64
	AppellantID string
}

func (e *DuplicateAppealError) Error() string {
	return fmt.Sprintf("an active appeal already exists for action %d by appellant %s", e.ActionID, e.AppellantID)
}

// ConcurrencyConflictError indicates an optimistic status transition matched
// zero rows: another caller changed the entity between read and write. The
// caller should re-fetch and retry against fresh state.
type ConcurrencyConflictError struct {
	Kind string
	ID   uint64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently, re-fetch and retry", e.Kind, e.ID)
}
