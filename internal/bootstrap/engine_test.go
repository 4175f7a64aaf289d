package bootstrap_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal"
	"github.com/dukerupert/cartsync/internal/bootstrap"
	"github.com/dukerupert/cartsync/internal/devserver"
	"github.com/dukerupert/cartsync/internal/storage"
)

func testConfig(baseURL string) *internal.Config {
	return &internal.Config{
		Env:      "dev",
		LogLevel: "debug",
		Cart: internal.CartConfig{
			AuthBaseURL:     baseURL,
			GuestBaseURL:    baseURL + "/guest",
			ProductBaseURL:  baseURL,
			Timeout:         5 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  time.Second,
		},
		Cache: internal.CacheConfig{
			GuestCartTTL:      30 * time.Minute,
			ProductTTL:        24 * time.Hour,
			EnrichConcurrency: 4,
		},
		Storage: internal.StorageConfig{Provider: "memory"},
		Events:  internal.EventsConfig{Subject: "cartsync.events"},
		Metrics: internal.MetricsConfig{Namespace: "cartsync"},
	}
}

func TestEngine_GuestThenLogin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev := devserver.New(devserver.WithLogger(logger))
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	engine, err := bootstrap.NewEngine(testConfig(ts.URL), logger, bootstrap.WithStore(storage.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, engine.Close()) })

	ctx := context.Background()
	_, err = engine.Carts.AddItem(ctx, "travel-mug", 2)
	require.NoError(t, err)

	token, err := dev.IssueToken("user-1", "user-1@example.com", time.Hour)
	require.NoError(t, err)
	_, err = engine.Auth.Login(ctx, token)
	require.NoError(t, err)

	cart, err := engine.Carts.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1, "guest lines were merged on login")
	assert.Equal(t, 2, cart.Lines[0].Quantity)

	n, err := testutil.GatherAndCount(engine.Registry, "cartsync_cart_operations_total")
	require.NoError(t, err)
	assert.Positive(t, n)
	n, err = testutil.GatherAndCount(engine.Registry, "cartsync_cart_migrations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_BadStorageProvider(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Storage.Provider = "floppy"

	_, err := bootstrap.NewEngine(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestEngine_ClosesConfiguredRedisStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev := devserver.New(devserver.WithLogger(logger))
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	mr := miniredis.RunT(t)

	cfg := testConfig(ts.URL)
	cfg.Storage = internal.StorageConfig{Provider: "redis", RedisAddr: mr.Addr(), Namespace: "cartsync"}
	engine, err := bootstrap.NewEngine(cfg, logger)
	require.NoError(t, err)

	_, err = engine.Carts.GetCart(context.Background())
	require.NoError(t, err)
	require.Positive(t, mr.CurrentConnectionCount())

	require.NoError(t, engine.Close())
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		time.Second, 10*time.Millisecond, "the namespaced redis pool is closed with the engine")
}

func TestEngine_LeavesCallerStoreOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewRedisStoreFromClient(client)

	engine, err := bootstrap.NewEngine(testConfig("http://127.0.0.1:1"), logger, bootstrap.WithStore(store))
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "id_token", []byte("t")), "the caller still owns the store")
	assert.NoError(t, store.Close())
	assert.Error(t, store.Put(ctx, "id_token", []byte("t")))
}
