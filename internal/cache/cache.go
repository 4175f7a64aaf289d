// Package cache is the engine's local TTL cache. Entries are persisted
// through a storage.Store as {data, timestamp} and expire at read time:
// a stale entry is a miss, not an error.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/cartsync/internal/storage"
)

// Cache classes and their default TTLs.
const (
	ClassGuestCart  = "guest_cart"
	ClassProduct    = "product"
	ClassProductMap = "product_map"

	GuestCartTTL = 30 * time.Minute
	ProductTTL   = 24 * time.Hour
)

// Lookup results reported to a Recorder.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultStale   = "stale"
	ResultCorrupt = "corrupt"
)

// Recorder receives one call per Get.
type Recorder interface {
	RecordCacheLookup(class, result string)
}

// Entry is the persisted form of a cached value.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"` // epoch milliseconds
}

// TTLCache is a typed view over a Store with a fixed TTL. There is no
// locking: concurrent writers overwrite each other.
type TTLCache[T any] struct {
	store    storage.Store
	class    string
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRecorder reports lookups (hit/miss/stale/corrupt) to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a cache of class with the given ttl.
func New[T any](store storage.Store, class string, ttl time.Duration, opts ...Option) *TTLCache[T] {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[T]{
		store:    store,
		class:    class,
		ttl:      ttl,
		now:      o.now,
		recorder: o.recorder,
		logger:   o.logger,
	}
}

// Get returns the cached value and true, or the zero value and false when
// the entry is absent, expired, unreadable or malformed.
func (c *TTLCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !storage.IsNotFound(err) {
			c.logger.Warn("cache read failed", "class", c.class, "key", key, "error", err)
		}
		c.record(ResultMiss)
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Debug("discarding malformed cache entry", "class", c.class, "key", key, "error", err)
		c.record(ResultCorrupt)
		return zero, false
	}

	age := c.now().Sub(time.UnixMilli(entry.Timestamp))
	if age > c.ttl || age < 0 {
		c.record(ResultStale)
		return zero, false
	}

	c.record(ResultHit)
	return entry.Data, true
}

// Set stores value stamped with the current time. Write failures are logged
// and swallowed; the cache is a latency buffer, never the source of truth.
func (c *TTLCache[T]) Set(ctx context.Context, key string, value T) {
	raw, err := json.Marshal(Entry[T]{Data: value, Timestamp: c.now().UnixMilli()})
	if err != nil {
		c.logger.Warn("cache encode failed", "class", c.class, "key", key, "error", err)
		return
	}
	if err := c.store.Put(ctx, key, raw); err != nil {
		c.logger.Warn("cache write failed", "class", c.class, "key", key, "error", err)
	}
}

// Invalidate drops key.
func (c *TTLCache[T]) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidate failed", "class", c.class, "key", key, "error", err)
	}
}

func (c *TTLCache[T]) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(c.class, result)
	}
}
