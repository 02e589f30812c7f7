// Package cachestore is a small TTL cache behind the queue and analytics
// read paths. Values are opaque bytes; a miss is (nil, false, nil).
package cachestore

import (
	"context"
	"time"
)

type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Purge(ctx context.Context, key string) error
}
