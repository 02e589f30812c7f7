package moderation

import (
	"fmt"
	"strings"
)

// TargetType is the kind of entity a moderation action is taken against.
type TargetType string

const (
	TargetResponse TargetType = "RESPONSE"
	TargetUser     TargetType = "USER"
	TargetTopic    TargetType = "TOPIC"
)

// ActionType is the enforcement measure being taken.
type ActionType string

const (
	ActionEducate ActionType = "EDUCATE"
	ActionWarn    ActionType = "WARN"
	ActionHide    ActionType = "HIDE"
	ActionRemove  ActionType = "REMOVE"
	ActionSuspend ActionType = "SUSPEND"
	ActionBan     ActionType = "BAN"
)

// Severity splits action types into educational and account/content impacting
// buckets. It is a pure function of ActionType; the stored column is always
// derived via SeverityFor and never written independently.
type Severity string

const (
	SeverityNonPunitive   Severity = "NON_PUNITIVE"
	SeverityConsequential Severity = "CONSEQUENTIAL"
)

// ActionStatus is the lifecycle state of a ModerationAction.
type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "PENDING"
	ActionStatusActive   ActionStatus = "ACTIVE"
	ActionStatusAppealed ActionStatus = "APPEALED"
	ActionStatusRejected ActionStatus = "REJECTED"
	ActionStatusReversed ActionStatus = "REVERSED"
)

// AppealStatus is the lifecycle state of an Appeal.
type AppealStatus string

const (
	AppealStatusPending     AppealStatus = "PENDING"
	AppealStatusUnderReview AppealStatus = "UNDER_REVIEW"
	AppealStatusUpheld      AppealStatus = "UPHELD"
	AppealStatusDenied      AppealStatus = "DENIED"
)

// Review decisions accepted by ReviewAppeal.
const (
	DecisionUpheld = "upheld"
	DecisionDenied = "denied"
)

// SeverityFor maps an action type to its severity.
func SeverityFor(at ActionType) Severity {
	switch at {
	case ActionEducate, ActionWarn:
		return SeverityNonPunitive
	default:
		return SeverityConsequential
	}
}

// IsTemporal indicates whether the temporal-ban fields are meaningful for
// this action type.
func (at ActionType) IsTemporal() bool {
	return at == ActionBan || at == ActionSuspend
}

// The parse helpers below are total: any string not naming a known enum value
// fails closed with a ValidationError, rather than defaulting. Inputs are
// accepted case-insensitively.

func ParseTargetType(s string) (TargetType, error) {
	switch tt := TargetType(strings.ToUpper(s)); tt {
	case TargetResponse, TargetUser, TargetTopic:
		return tt, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized target type: %q", s)}
	}
}

func ParseActionType(s string) (ActionType, error) {
	switch at := ActionType(strings.ToUpper(s)); at {
	case ActionEducate, ActionWarn, ActionHide, ActionRemove, ActionSuspend, ActionBan:
		return at, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized action type: %q", s)}
	}
}

func ParseSeverity(s string) (Severity, error) {
	switch sv := Severity(strings.ToUpper(s)); sv {
	case SeverityNonPunitive, SeverityConsequential:
		return sv, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized severity: %q", s)}
	}
}

func ParseActionStatus(s string) (ActionStatus, error) {
	switch st := ActionStatus(strings.ToUpper(s)); st {
	case ActionStatusPending, ActionStatusActive, ActionStatusAppealed, ActionStatusRejected, ActionStatusReversed:
		return st, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized action status: %q", s)}
	}
}

func ParseAppealStatus(s string) (AppealStatus, error) {
	switch st := AppealStatus(strings.ToUpper(s)); st {
	case AppealStatusPending, AppealStatusUnderReview, AppealStatusUpheld, AppealStatusDenied:
		return st, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized appeal status: %q", s)}
	}
}

func ParseDecision(s string) (string, error) {
	switch d := strings.ToLower(s); d {
	case DecisionUpheld, DecisionDenied:
		return d, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized review decision: %q", s)}
	}
}
