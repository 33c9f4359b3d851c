// Package redisstore persists store snapshots in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/yitech/klinechart/store"
)

const keyPrefix = "klinechart:"

type Storage struct {
	client *redis.Client
	prefix string
}

func New(addr, password string, db int) *Storage {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewWithClient(client *redis.Client) *Storage {
	return &Storage{client: client, prefix: keyPrefix}
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstore: ping: %w", err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return b, nil
}

// Save overwrites the snapshot without expiry.
func (s *Storage) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

var _ store.Persister = (*Storage)(nil)
