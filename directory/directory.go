// Package directory resolves moderator identities. The moderation services
// only need existence checks before assigning or recording a reviewer; role
// management itself lives outside this codebase.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorum-social/quorum/models"

	"gorm.io/gorm"
)

// ErrModeratorNotFound indicates the id does not name an active moderator.
var ErrModeratorNotFound = errors.New("moderator not found")

type Directory interface {
	GetModerator(ctx context.Context, id string) (*models.Moderator, error)
}

// GormDirectory looks moderators up in the shared database.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) GetModerator(ctx context.Context, id string) (*models.Moderator, error) {
	var row models.Moderator
	err := d.db.WithContext(ctx).First(&row, "id = ? AND active = ?", id, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrModeratorNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
