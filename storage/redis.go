package storage

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces session keys
const DefaultPrefix = "session:"

// RedisStorage is a fiber.Storage on top of go-redis. fiber calls it
// without a context so every command runs under its own timeout.
type RedisStorage struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ fiber.Storage = (*RedisStorage)(nil)

// NewRedisStorage stores keys under prefix, DefaultPrefix when empty
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStorage{
		client:  client,
		prefix:  prefix,
		timeout: 3 * time.Second,
	}
}

func (s *RedisStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns nil, nil for missing keys
func (s *RedisStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val, forever when exp is zero
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}

	ctx, cancel := s.ctx()
	defer cancel()

	return s.client.Set(ctx, s.prefix+key, val, exp).Err()
}

func (s *RedisStorage) Delete(key string) error {
	if key == "" {
		return nil
	}

	ctx, cancel := s.ctx()
	defer cancel()

	return s.client.Del(ctx, s.prefix+key).Err()
}

// Reset removes every key under the prefix
func (s *RedisStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
