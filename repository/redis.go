package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"fnkit/health"
)

// DefaultRedisHash names the hash used when no prefix is configured.
const DefaultRedisHash = "fnkit:repository"

// RedisBackend keeps every entry as a field of one Redis hash, so Clear is a
// single DEL and Len a single HLEN.
type RedisBackend struct {
	client goredis.Cmdable
	hash   string
}

// NewRedisClient creates a go-redis client for addr.
func NewRedisClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisBackend creates a backend over client storing into hash. An empty
// hash selects DefaultRedisHash.
func NewRedisBackend(client goredis.Cmdable, hash string) *RedisBackend {
	if hash == "" {
		hash = DefaultRedisHash
	}
	return &RedisBackend{client: client, hash: hash}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.HGet(ctx, b.hash, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field %s: %w", key, err)
	}
	return value, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.HSet(ctx, b.hash, key, value).Err(); err != nil {
		return fmt.Errorf("failed to set field %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.HDel(ctx, b.hash, key).Err(); err != nil {
		return fmt.Errorf("failed to delete field %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.client.HKeys(ctx, b.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	n, err := b.client.HLen(ctx, b.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count fields: %w", err)
	}
	return int(n), nil
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, b.hash).Err(); err != nil {
		return fmt.Errorf("failed to clear hash: %w", err)
	}
	return nil
}

// CheckHealth pings the server.
func (b *RedisBackend) CheckHealth(ctx context.Context) health.Report {
	const name = "redis"

	if err := b.client.Ping(ctx).Err(); err != nil {
		return health.Failed(name, err)
	}
	report := health.OK(name)
	report.Details = map[string]any{"hash": b.hash}
	return report
}

// Close closes the client when it owns connections.
func (b *RedisBackend) Close() error {
	if c, ok := b.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
