package models

import (
	"time"
)

// ModerationAction is an enforcement decision against a response, user, or
// topic. Rows are never deleted; terminal outcomes are recorded as status
// changes plus bracketed annotations appended to Reasoning.
type ModerationAction struct {
	ID         uint64 `gorm:"primaryKey"`
	TargetType string `gorm:"not null;index:idx_action_target"`
	TargetID   string `gorm:"not null;index:idx_action_target"`
	ActionType string `gorm:"not null"`
	Severity   string `gorm:"not null"`
	Reasoning  string `gorm:"not null"`
	Status     string `gorm:"not null;index"`

	AIRecommended bool    `gorm:"not null;index"`
	AIConfidence  float64 `gorm:"not null"`

	ApprovedByID *string
	ApprovedAt   *time.Time
	ExecutedAt   *time.Time

	// Only meaningful for BAN and SUSPEND.
	IsTemporary     bool
	BanDurationDays *int
	ExpiresAt       *time.Time
	LiftedAt        *time.Time

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Appeal is a contest of a ModerationAction raised by its target. At most one
// appeal per (action, appellant) may be PENDING or UNDER_REVIEW at a time.
type Appeal struct {
	ID                 uint64 `gorm:"primaryKey"`
	// one unresolved appeal per appellant per action, enforced at the
	// database so racing creates cannot slip past the service-level check
	ModerationActionID uint64 `gorm:"not null;uniqueIndex:idx_active_appeal,where:status = 'PENDING' OR status = 'UNDER_REVIEW'"`
	AppellantID        string `gorm:"not null;uniqueIndex:idx_active_appeal"`
	Reason             string `gorm:"not null"`
	Status             string `gorm:"not null;index"`

	ReviewerID        *string
	DecisionReasoning *string

	CreatedAt  time.Time `gorm:"not null;index"`
	ResolvedAt *time.Time
}
