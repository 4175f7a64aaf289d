package storage

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal"
)

// setupTestRedis creates a miniredis server and returns a RedisStore on it.
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreFromClient(client), mr
}

func stores(t *testing.T) map[string]Store {
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	rs, _ := setupTestRedis(t)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  local,
		"redis":  rs,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "guest_cart:guest_1")
			assert.True(t, IsNotFound(err), "missing key should be ErrNotFound")

			require.NoError(t, s.Put(ctx, "guest_cart:guest_1", []byte(`{"a":1}`)))
			got, err := s.Get(ctx, "guest_cart:guest_1")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, s.Put(ctx, "guest_cart:guest_1", []byte(`{"a":2}`)))
			got, err = s.Get(ctx, "guest_cart:guest_1")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got), "last writer wins")

			require.NoError(t, s.Delete(ctx, "guest_cart:guest_1"))
			_, err = s.Get(ctx, "guest_cart:guest_1")
			assert.True(t, IsNotFound(err))

			assert.NoError(t, s.Delete(ctx, "never-written"), "delete is idempotent")
		})
	}
}

func TestRedisStore_NoExpiry(t *testing.T) {
	rs, mr := setupTestRedis(t)
	require.NoError(t, rs.Put(context.Background(), "product:p1", []byte("{}")))

	assert.True(t, mr.Exists("product:p1"))
	assert.Zero(t, mr.TTL("product:p1"), "freshness is decided by the cache layer")
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	v := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", v))
	v[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	a := Namespaced(base, "profile-a")
	b := Namespaced(base, "profile-b:")

	require.NoError(t, a.Put(ctx, "guest_session_id", []byte("guest_a")))
	_, err := b.Get(ctx, "guest_session_id")
	assert.True(t, IsNotFound(err))

	raw, err := base.Get(ctx, "profile-a:guest_session_id")
	require.NoError(t, err)
	assert.Equal(t, "guest_a", string(raw))
}

func TestNamespaced_ClosesWrappedStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := NewStore(internal.StorageConfig{Provider: "redis", RedisAddr: mr.Addr(), Namespace: "cartsync"})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "guest_session_id", []byte("guest_1")))
	assert.True(t, mr.Exists("cartsync:guest_session_id"))

	closer, ok := s.(io.Closer)
	require.True(t, ok, "a namespaced redis store must be closable")
	require.NoError(t, closer.Close())

	_, err = s.Get(ctx, "guest_session_id")
	assert.Error(t, err, "the redis pool is closed")

	mem, ok := Namespaced(NewMemoryStore(), "ns").(io.Closer)
	require.True(t, ok)
	assert.NoError(t, mem.Close(), "closing a store without resources is a no-op")
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(internal.StorageConfig{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(internal.StorageConfig{Provider: "local", LocalPath: t.TempDir(), Namespace: "ns"})
	require.NoError(t, err)
	assert.IsType(t, &namespacedStore{}, s)

	_, err = NewStore(internal.StorageConfig{Provider: "redis"})
	assert.Error(t, err, "redis requires an address")

	_, err = NewStore(internal.StorageConfig{Provider: "s3"})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, codeInvalid, se.ErrorCode())
}
