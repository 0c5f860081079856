package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kmoai/kmoai/config"
)

// RedisStore keeps each namespace as a Redis hash; fields are hash fields
// and the TTL applies to the whole hash, refreshed on every write.
type RedisStore struct {
	rc     redis.UniversalClient
	prefix string
}

// NewRedisStore connects lazily; the first command dials.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(rc, "")
}

// NewRedisStoreFromClient wraps an existing client, e.g. one shared with
// the keyword back-end.
func NewRedisStoreFromClient(rc redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rc: rc, prefix: prefix}
}

// Client exposes the underlying connection.
func (s *RedisStore) Client() redis.UniversalClient { return s.rc }

func (s *RedisStore) key(namespace string) string { return s.prefix + namespace }

func (s *RedisStore) Get(ctx context.Context, namespace, field string) (string, bool, error) {
	v, err := s.rc.HGet(ctx, s.key(namespace), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, field, value string, ttl time.Duration) error {
	k := s.key(namespace)
	_, err := s.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, field, value)
		if ttl > 0 {
			p.Expire(ctx, k, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.rc.Close()
}
