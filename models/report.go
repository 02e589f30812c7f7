package models

import (
	"time"
)

// Report is a user-filed flag against content or an account. Reports feed
// the moderation queue; resolving one links it to the ModerationAction that
// addressed it.
type Report struct {
	ID           uint64 `gorm:"primaryKey"`
	TargetType   string `gorm:"not null"`
	TargetID     string `gorm:"not null;index"`
	ReasonType   string `gorm:"not null"`
	Reason       *string
	ReportedByID string `gorm:"not null;index"`

	ResolvedByActionID *uint64
	ResolvedAt         *time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"not null"`
}
