// Package redis provides a Redis-backed storage.Store for deployments
// where clients on different hosts share one session scope.
package redis

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

// Store implements storage.Store backed by a Redis client.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

// New creates a Redis-backed store. All keys are namespaced under prefix;
// an empty prefix defaults to "blogauth:".
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "blogauth:"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := s.rdb.Keys(ctx, s.key(prefix)+"*").Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, k[len(s.prefix):])
	}
	return keys, nil
}
