package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCacheStore struct {
	data *expirable.LRU[string, []byte]
}

// NewMemCacheStore keeps up to capacity entries, each expiring after ttl.
// Per-call TTLs below the store-wide ttl are not honored; this matches how
// the queue uses it (one TTL for all stats entries).
func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		data: expirable.NewLRU[string, []byte](capacity, nil, ttl),
	}
}

func (s *MemCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *MemCacheStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.data.Add(key, val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, key string) error {
	s.data.Remove(key)
	return nil
}
