package directory

import (
	"context"
	"time"

	"github.com/quorum-social/quorum/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheDirectory wraps another Directory with an expiring LRU. Moderator
// records change rarely; a short TTL keeps deactivations from lingering.
type CacheDirectory struct {
	inner Directory
	cache *expirable.LRU[string, models.Moderator]
}

func NewCacheDirectory(inner Directory, capacity int, ttl time.Duration) *CacheDirectory {
	return &CacheDirectory{
		inner: inner,
		cache: expirable.NewLRU[string, models.Moderator](capacity, nil, ttl),
	}
}

func (d *CacheDirectory) GetModerator(ctx context.Context, id string) (*models.Moderator, error) {
	if hit, ok := d.cache.Get(id); ok {
		return &hit, nil
	}
	row, err := d.inner.GetModerator(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.Add(id, *row)
	return row, nil
}
