package models

import (
	"time"
)

// Moderator is the directory record for a user holding the moderator role.
// Role management itself happens elsewhere; this table only backs existence
// checks for assignment and review.
type Moderator struct {
	ID          string `gorm:"primaryKey"`
	Handle      string `gorm:"uniqueIndex"`
	DisplayName string
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"not null"`
}
