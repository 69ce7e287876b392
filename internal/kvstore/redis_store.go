package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// visitorStateTTL bounds how long abandoned visitor counters linger.
const visitorStateTTL = 30 * 24 * time.Hour

// RedisStore persists visitor state in Redis under a namespaced prefix.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore creates a store whose keys are namespaced by prefix
// (typically "widget:<visitorID>").
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		return nil
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		tracer: otel.Tracer("leadchat.internal.kvstore"),
		ttl:    visitorStateTTL,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.redis == nil {
		return "", false, errors.New("kvstore: redis store not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.get")
	defer span.End()

	val, err := s.redis.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if s == nil || s.redis == nil {
		return errors.New("kvstore: redis store not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.set")
	defer span.End()

	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("kvstore: set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.redis == nil {
		return errors.New("kvstore: redis store not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.remove")
	defer span.End()

	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("kvstore: remove %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}
