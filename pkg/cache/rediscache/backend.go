// Package rediscache stores the response cache snapshot under one Redis key.
package rediscache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pario-ai/leadchat/pkg/cache"
)

// DefaultKey is the Redis key holding the snapshot.
const DefaultKey = "leadchat:cache:snapshot"

// Backend is a cache.Backend over a Redis client.
type Backend struct {
	rdb *redis.Client
	key string
}

// New wraps an existing client. An empty key means DefaultKey.
func New(rdb *redis.Client, key string) *Backend {
	if rdb == nil {
		panic("rediscache: redis client cannot be nil")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Backend{rdb: rdb, key: key}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url, key string) (*Backend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, key), nil
}

func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (b *Backend) Save(ctx context.Context, data []byte) error {
	if err := b.rdb.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *Backend) Size(ctx context.Context) (int64, error) {
	n, err := b.rdb.StrLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis strlen: %w", err)
	}
	return n, nil
}

func (b *Backend) Location() string {
	return fmt.Sprintf("redis://%s/%s", b.rdb.Options().Addr, b.key)
}

func (b *Backend) Close() error {
	return b.rdb.Close()
}
