package storage

import (
	"context"
	"io"
	"strings"

	"github.com/dukerupert/cartsync/internal"
)

// Store persists the engine's local state: the guest session id, the guest
// cart snapshot and cached product records. Values are opaque bytes; callers
// own serialization.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, replacing any previous value. Last writer wins.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Returns nil if the key doesn't exist (idempotent).
	Delete(ctx context.Context, key string) error
}

// NewStore creates a Store implementation based on configuration.
func NewStore(cfg internal.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Provider {
	case "memory", "":
		s = NewMemoryStore()
	case "local":
		s, err = NewLocalStore(cfg.LocalPath)
	case "redis":
		s, err = NewRedisStore(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Namespace != "" {
		s = Namespaced(s, cfg.Namespace)
	}
	return s, nil
}

// Namespaced prefixes every key with ns, so several engines (or profiles)
// can share one backing store.
func Namespaced(s Store, ns string) Store {
	return &namespacedStore{next: s, prefix: strings.TrimSuffix(ns, ":") + ":"}
}

type namespacedStore struct {
	next   Store
	prefix string
}

func (n *namespacedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return n.next.Get(ctx, n.prefix+key)
}

func (n *namespacedStore) Put(ctx context.Context, key string, value []byte) error {
	return n.next.Put(ctx, n.prefix+key, value)
}

func (n *namespacedStore) Delete(ctx context.Context, key string) error {
	return n.next.Delete(ctx, n.prefix+key)
}

// Close closes the wrapped store when it holds resources.
func (n *namespacedStore) Close() error {
	if c, ok := n.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
