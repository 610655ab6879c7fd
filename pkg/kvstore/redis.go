package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a Redis server.
type RedisStore struct {
	client *redis.Client
	addr   string
}

// NewRedisStore builds a client from a redis:// or rediss:// URL. The
// connection is lazy; use Ping to check reachability.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Failures surface to the caller immediately and are never retried.
	opts.MaxRetries = -1
	return &RedisStore{
		client: redis.NewClient(opts),
		addr:   redactURL(rawURL),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logFailure("get", key, err)
		}
		return "", false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logFailure("set", key, err)
		return false
	}
	return true
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, bool) {
	created, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		s.logFailure("setnx", key, err)
		return false, false
	}
	return created, true
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, bool) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logFailure("exists", key, err)
		return false, false
	}
	return n > 0, true
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", s.addr, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) logFailure(op, key string, err error) {
	logger.ErrorCF(component, "Redis operation failed", map[string]interface{}{
		"op":    op,
		"key":   key,
		"addr":  s.addr,
		"error": err.Error(),
	})
}
