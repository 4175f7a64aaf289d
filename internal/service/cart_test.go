package service_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal/devserver"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/service"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGuestCart_AddThenGet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cart, err := e.carts.AddItem(ctx, "espresso-blend", 2)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, domain.IdentityGuest, cart.Identity.Kind)
	assert.True(t, strings.HasPrefix(cart.Identity.SessionID, "guest_"))
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.True(t, cart.TotalPrice.Equal(dec("49")))
	require.NotNil(t, cart.Lines[0].Product, "guest lines are enriched from the catalog")
	assert.Equal(t, "Espresso Blend 1kg", cart.Lines[0].Product.Name)

	got, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	require.NotNil(t, got.Lines[0].Product)

	assert.Zero(t, e.guestReads.Load(), "read served from the cache the mutation refreshed")
	assert.EqualValues(t, 1, e.productGets.Load(), "product display data is cached")
	assert.Equal(t, 1, e.countEvents(eventbus.CartUpdated))
}

func TestGuestCart_CacheFreshness(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	require.NoError(t, err)
	sid, ok := e.sessions.Current(ctx)
	require.True(t, ok)

	// Another device changes the cart behind the engine's back.
	e.dev.Store().Seed("", sid, "paper-filters", 3)

	e.clock.Advance(10 * time.Minute)
	cart, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1, "fresh cache entry is served")
	assert.Zero(t, e.guestReads.Load())

	e.clock.Advance(21 * time.Minute)
	cart, err = e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2, "expired entry is refetched")
	assert.EqualValues(t, 1, e.guestReads.Load())
}

func TestGuestCart_UnknownSessionIsEmpty(t *testing.T) {
	e := newEnv(t)

	cart, err := e.carts.GetCart(context.Background())
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	empty, err := e.carts.IsCartEmpty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestClearCart_Idempotent(t *testing.T) {
	for _, signedIn := range []bool{false, true} {
		name := "guest"
		if signedIn {
			name = "authenticated"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			if signedIn {
				e.login(t, "user-1")
			}

			_, err := e.carts.AddItem(ctx, "travel-mug", 1)
			require.NoError(t, err)
			_, err = e.carts.AddItem(ctx, "paper-filters", 2)
			require.NoError(t, err)

			require.NoError(t, e.carts.ClearCart(ctx))
			require.NoError(t, e.carts.ClearCart(ctx))

			cart, err := e.carts.GetCart(ctx)
			require.NoError(t, err)
			assert.True(t, cart.IsEmpty())
			assert.Equal(t, 3, e.countEvents(eventbus.CartUpdated), "two adds and one effective clear")
		})
	}
}

func TestClearCart_PartialFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t, "user-1")
	store := e.dev.Store()
	store.Seed("user-1", "", "travel-mug", 1)
	store.Seed("user-1", "", "espresso-blend", 1)
	store.Seed("user-1", "", "paper-filters", 1)

	e.failWhen(http.MethodDelete, "/cart/items/espresso-blend")
	err := e.carts.ClearCart(ctx)

	var partial *domain.PartialClearError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, domain.EPARTIAL, domain.ErrorCode(err))
	assert.Equal(t, []string{"travel-mug", "paper-filters"}, partial.Removed)
	assert.Equal(t, []string{"espresso-blend"}, partial.Failed)
	assert.Equal(t, 1, e.countEvents(eventbus.CartUpdated))
	require.Len(t, e.reporter.captured(), 1)

	cart, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "espresso-blend", cart.Lines[0].ProductID)
}

func TestClearCart_AllRemovalsFail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t, "user-1")
	e.dev.Store().Seed("user-1", "", "travel-mug", 1)
	e.dev.Store().Seed("user-1", "", "paper-filters", 1)

	e.failWhen(http.MethodDelete, "/cart/items/")
	err := e.carts.ClearCart(ctx)

	require.Error(t, err)
	assert.False(t, domain.IsPartialFailure(err))
	assert.Equal(t, domain.EMUTATION, domain.ErrorCode(err))
	assert.Zero(t, e.countEvents(eventbus.CartUpdated))
}

func TestIdentityIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.login(t, "user-1")
	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	require.NoError(t, err)
	require.NoError(t, e.auth.Logout(ctx))

	e.login(t, "user-2")
	cart, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-2", cart.Identity.UserID)
	assert.True(t, cart.IsEmpty(), "user-2 must not see user-1's lines")
	require.NoError(t, e.auth.Logout(ctx))

	cart, err = e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityGuest, cart.Identity.Kind)
	assert.True(t, cart.IsEmpty(), "the guest cart is separate from both accounts")
}

func TestGuestLinesStayOffTheAccountUntilMigration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cart, err := e.carts.AddItem(ctx, "travel-mug", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityGuest, cart.Identity.Kind)

	account := e.dev.Store().AuthCart("user-1")
	assert.Empty(t, account.Items, "guest lines never reach the account cart on their own")
	assert.Zero(t, account.TotalItems)

	e.login(t, "user-1")
	account = e.dev.Store().AuthCart("user-1")
	require.Len(t, account.Items, 1, "migration on login moves the guest line")
	assert.Equal(t, "travel-mug", account.Items[0].ProductID)
	assert.Equal(t, 2, account.Items[0].Quantity)
}

func TestIncrementItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t, "user-1")
	e.dev.Store().Seed("user-1", "", "travel-mug", 99)

	_, err := e.carts.IncrementItem(ctx, "travel-mug")
	assert.True(t, domain.IsValidationError(err), "a line at the maximum cannot grow")
	assert.Zero(t, e.countEvents(eventbus.CartUpdated))

	cart, err := e.carts.IncrementItem(ctx, "paper-filters")
	require.NoError(t, err)
	line, ok := cart.Line("paper-filters")
	require.True(t, ok, "a missing line is added")
	assert.Equal(t, 1, line.Quantity)

	cart, err = e.carts.IncrementItem(ctx, "paper-filters")
	require.NoError(t, err)
	line, _ = cart.Line("paper-filters")
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, 2, e.countEvents(eventbus.CartUpdated))
}

func TestDecrementItem(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.login(t, "user-1")
		e.dev.Store().Seed("user-1", "", "paper-filters", 2)

		cart, err := e.carts.DecrementItem(ctx, "paper-filters")
		require.NoError(t, err)
		line, _ := cart.Line("paper-filters")
		assert.Equal(t, 1, line.Quantity)

		cart, err = e.carts.DecrementItem(ctx, "paper-filters")
		require.NoError(t, err)
		assert.True(t, cart.IsEmpty(), "decrement at one removes the line")

		_, err = e.carts.DecrementItem(ctx, "paper-filters")
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})

	t.Run("guest", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()

		_, err := e.carts.AddItem(ctx, "travel-mug", 1)
		require.NoError(t, err)

		cart, err := e.carts.DecrementItem(ctx, "travel-mug")
		require.NoError(t, err)
		assert.True(t, cart.IsEmpty())
	})
}

func TestUpdateAndRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	require.NoError(t, err)

	cart, err := e.carts.UpdateItemQuantity(ctx, "travel-mug", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.TotalItems)
	assert.True(t, cart.TotalPrice.Equal(dec("90")))

	cart, err = e.carts.RemoveItem(ctx, "travel-mug")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	_, err = e.carts.RemoveItem(ctx, "travel-mug")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.Equal(t, 3, e.countEvents(eventbus.CartUpdated), "failed mutations publish nothing")
}

// Property: quantities outside [1, 99] are rejected before any request.
func TestQuantityValidation_NoRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("invalid quantities never reach the service", prop.ForAll(
		func(q int) bool {
			before := e.requests.Load()
			_, addErr := e.carts.AddItem(ctx, "travel-mug", q)
			_, updErr := e.carts.UpdateItemQuantity(ctx, "travel-mug", q)
			return domain.IsValidationError(addErr) &&
				domain.IsValidationError(updErr) &&
				e.requests.Load() == before
		},
		gen.OneGenOf(gen.IntRange(-1000, 0), gen.IntRange(100, 1000)),
	))

	properties.TestingRun(t)

	_, err := e.carts.AddItem(ctx, " ", 1)
	assert.True(t, domain.IsValidationError(err))
}

func TestCoupons(t *testing.T) {
	t.Run("guest is unsupported", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()

		_, err := e.carts.ApplyCoupon(ctx, "SAVE10")
		assert.Equal(t, domain.EUNSUPPORTED, domain.ErrorCode(err))
		_, err = e.carts.RemoveCoupon(ctx)
		assert.Equal(t, domain.EUNSUPPORTED, domain.ErrorCode(err))
		_, err = e.carts.ApplyCoupon(ctx, "  ")
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("authenticated", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.login(t, "user-1")
		e.dev.Store().Seed("user-1", "", "hand-grinder", 2)

		_, err := e.carts.ApplyCoupon(ctx, "BOGUS")
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Equal(t, service.ErrCouponInvalid.Message, domain.ErrorMessage(err))

		cart, err := e.carts.ApplyCoupon(ctx, "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", cart.CouponCode)
		require.NotNil(t, cart.DiscountedTotal)
		assert.True(t, cart.DiscountedTotal.Equal(dec("160.20")))

		total, err := e.carts.GetCartTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("160.20")), total.String())

		cart, err = e.carts.RemoveCoupon(ctx)
		require.NoError(t, err)
		assert.Empty(t, cart.CouponCode)

		total, err = e.carts.GetCartTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("178")))
	})
}

func TestStockErrors(t *testing.T) {
	tests := []struct {
		name    string
		legacy  bool
		product string
		want    error
	}{
		{"out of stock", false, "gooseneck-kettle", domain.ErrOutOfStock},
		{"coming soon", false, "ceramic-dripper", domain.ErrComingSoon},
		{"out of stock from message", true, "gooseneck-kettle", domain.ErrOutOfStock},
		{"coming soon from message", true, "ceramic-dripper", domain.ErrComingSoon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []envOption
			if tt.legacy {
				opts = append(opts, withDevserver(devserver.WithLegacyErrors()))
			}
			e := newEnv(t, opts...)
			ctx := context.Background()

			_, err := e.carts.AddItem(ctx, tt.product, 1)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, e.countEvents(eventbus.CartUpdated))

			e.login(t, "user-1")
			published := e.countEvents(eventbus.CartUpdated)
			_, err = e.carts.AddItem(ctx, tt.product, 1)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, published, e.countEvents(eventbus.CartUpdated))
		})
	}
}

func TestSummaryCountAndValidation(t *testing.T) {
	check := func(t *testing.T, e *env) {
		ctx := context.Background()

		s, err := e.carts.GetSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, s.LineCount)
		assert.Equal(t, 6, s.TotalItems)
		assert.True(t, s.TotalPrice.Equal(dec("74")), s.TotalPrice.String())

		n, err := e.carts.GetItemCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		empty, err := e.carts.IsCartEmpty(ctx)
		require.NoError(t, err)
		assert.False(t, empty)

		total, err := e.carts.GetCartTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("74")))
	}

	t.Run("guest", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		_, err := e.carts.AddItem(ctx, "espresso-blend", 2)
		require.NoError(t, err)
		_, err = e.carts.AddItem(ctx, "paper-filters", 4)
		require.NoError(t, err)
		check(t, e)
	})

	t.Run("authenticated", func(t *testing.T) {
		e := newEnv(t)
		e.login(t, "user-1")
		e.dev.Store().Seed("user-1", "", "espresso-blend", 2)
		e.dev.Store().Seed("user-1", "", "paper-filters", 4)
		check(t, e)

		e.dev.Store().SetStock("paper-filters", 1)
		v, err := e.carts.ValidateCart(context.Background())
		require.NoError(t, err)
		assert.False(t, v.Valid)
		require.Len(t, v.Issues, 1)
		assert.Equal(t, domain.ValidationIssue{ProductID: "paper-filters", Reason: "out_of_stock", Available: 1}, v.Issues[0])
	})
}

func TestAuthenticatedMutation_RefetchFailureStillPublishes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t, "user-1")

	e.failWhen(http.MethodGet, "/cart")
	_, err := e.carts.AddItem(ctx, "travel-mug", 1)
	assert.Equal(t, domain.ENETWORK, domain.ErrorCode(err))
	assert.Equal(t, 1, e.countEvents(eventbus.CartUpdated), "the mutation reached the service")

	e.dev.InjectFault(nil)
	cart, err := e.carts.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestRejectedToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	forged, err := devserver.SignToken([]byte("not-the-server-key"), "user-9", "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = e.auth.Login(ctx, forged)
	require.NoError(t, err)

	_, err = e.carts.GetCart(ctx)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	_, err = e.carts.AddItem(ctx, "travel-mug", 1)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestGuestRead_ServiceDown(t *testing.T) {
	e := newEnv(t)

	e.failWhen(http.MethodGet, "/guest/cart")
	_, err := e.carts.GetCart(context.Background())
	assert.Equal(t, domain.ENETWORK, domain.ErrorCode(err))
}
