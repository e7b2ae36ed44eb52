package redisx

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
)

// LocalStore keeps cached collections in Redis without expiry.
type LocalStore struct {
	rdb *redis.Client
}

func NewLocalStore(rdb *redis.Client) *LocalStore {
	return &LocalStore{rdb: rdb}
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}
