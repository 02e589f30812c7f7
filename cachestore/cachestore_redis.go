package cachestore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCachePrefix = "qcache/"

type RedisCacheStore struct {
	client *redis.Client
}

func NewRedisCacheStore(redisURL string) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisCacheStore{client: rdb}, nil
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.client.Set(ctx, redisCachePrefix+key, val, ttl).Err()
}

func (s *RedisCacheStore) Purge(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisCachePrefix+key).Err()
}
