package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store on Redis, for deployments where the engine
// runs server-side on behalf of many browser profiles.
//
// Keys carry no Redis TTL: freshness is decided by the cache layer at read
// time, not by eviction.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, &StorageError{Code: codeInvalid, Message: "redis address is required"}
	}
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errUnavailable("get", err)
	}
	return data, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errUnavailable("put", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errUnavailable("delete", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
