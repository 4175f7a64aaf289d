package service_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
)

func TestMigration_OnLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.dev.Store().Seed("user-1", "", "espresso-blend", 98)
	e.dev.Store().Seed("user-1", "", "travel-mug", 1)

	_, err := e.carts.AddItem(ctx, "espresso-blend", 2)
	require.NoError(t, err)
	sid, ok := e.sessions.Current(ctx)
	require.True(t, ok)
	published := e.countEvents(eventbus.CartUpdated)

	e.login(t, "user-1")

	_, ok = e.sessions.Current(ctx)
	assert.False(t, ok, "guest session is cleared after a merge")
	_, hit := e.guestCache.Get(ctx, cache.GuestCartKey(sid))
	assert.False(t, hit, "guest cart cache is invalidated")
	assert.Equal(t, published+1, e.countEvents(eventbus.CartUpdated))
	assert.Empty(t, e.reporter.captured())

	cart, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityAuthenticated, cart.Identity.Kind)
	espresso, ok := cart.Line("espresso-blend")
	require.True(t, ok)
	assert.Equal(t, 99, espresso.Quantity)
	_, ok = cart.Line("travel-mug")
	assert.True(t, ok)

	token, err := e.auth.IDToken(ctx)
	require.NoError(t, err)
	again, err := e.migration.Migrate(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, again, "a second migration has nothing to merge")
}

func TestMigration_NoGuestSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cart, err := e.migration.Migrate(ctx, "any-token")
	require.NoError(t, err)
	assert.Nil(t, cart)
	assert.Zero(t, e.requests.Load())
}

func TestMigration_RequiresToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	require.NoError(t, err)

	_, err = e.migration.Migrate(ctx, "")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestMigration_FailureDoesNotBlockLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	require.NoError(t, err)

	e.failWhen(http.MethodPost, "/cart/migrate")
	e.login(t, "user-1")
	assert.True(t, e.auth.IsAuthenticated(ctx))

	reports := e.reporter.captured()
	require.Len(t, reports, 1)
	assert.Equal(t, domain.EMIGRATION, domain.ErrorCode(reports[0].err))
	assert.Equal(t, "user-1", reports[0].tags["user_id"])

	_, ok := e.sessions.Current(ctx)
	assert.True(t, ok, "guest session survives a failed migration")

	e.dev.InjectFault(nil)
	token, err := e.auth.IDToken(ctx)
	require.NoError(t, err)
	cart, err := e.migration.Migrate(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, cart)
	assert.Len(t, cart.Lines, 1)
}
