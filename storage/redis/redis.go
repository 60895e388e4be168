// Package redis provides a Redis-backed storage.Store so that several
// workstations or console instances can share one operator session.
// Each namespace is a single hash keyed by "<prefix>:<namespace>".
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/tokendesk/storage"
)

// DefaultPrefix is prepended to every namespace hash key.
const DefaultPrefix = "tokendesk"

// Store implements storage.Store backed by Redis hashes.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	owned  bool
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store using an existing client. Close does not close
// a client supplied this way.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// NewStoreFromAddr dials addr, verifies the connection and returns a Store
// that owns the client. An empty prefix selects DefaultPrefix.
func NewStoreFromAddr(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	s := NewStore(rdb, prefix)
	s.owned = true
	return s, nil
}

func (s *Store) hashKey(namespace string) string {
	return s.prefix + ":" + namespace
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	value, err := s.rdb.HGet(ctx, s.hashKey(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	return s.rdb.HSet(ctx, s.hashKey(namespace), key, value).Err()
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	n, err := s.rdb.HDel(ctx, s.hashKey(namespace), key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	return s.rdb.HKeys(ctx, s.hashKey(namespace)).Result()
}

// Close closes the client when the Store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
