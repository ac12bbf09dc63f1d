package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/blockflow/pkg/observability"
)

// RedisBackend stores values in a Redis server.
type RedisBackend struct {
	client *redis.Client
}

// RedisOptions configures a Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBackend connects to Redis and verifies the connection with PING.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return &RedisBackend{client: client}, nil
}

// Get retrieves a value.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.Storage().OnStorageMiss(ctx, BackendRedis)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, redisErr("get", err)
	}
	observability.Storage().OnStorageHit(ctx, BackendRedis)
	return data, true, nil
}

// Set stores a value; Redis expires it after ttl when ttl is positive.
func (b *RedisBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return redisErr("set", err)
	}
	observability.Storage().OnStorageSet(ctx, BackendRedis, len(data))
	return nil
}

// Delete removes a value.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return redisErr("delete", err)
	}
	return nil
}

// List scans for keys with prefix. Glob metacharacters in prefix are
// escaped.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, redisErr("scan", err)
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func redisErr(op string, err error) error {
	wrapped := fmt.Errorf("redis %s: %w", op, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable(wrapped)
	}
	return wrapped
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ Backend = (*RedisBackend)(nil)
