package domain_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal/domain"
)

// Property: ValidateQuantity(q) == (1 <= q <= 99) for any integer q
func TestValidateQuantity_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("valid iff within [1,99]", prop.ForAll(
		func(q int) bool {
			return domain.ValidateQuantity(q) == (q >= 1 && q <= 99)
		},
		gen.IntRange(-1000, 1000),
	))

	properties.Property("CheckQuantity errors exactly when invalid", prop.ForAll(
		func(q int) bool {
			err := domain.CheckQuantity("test", q)
			return (err == nil) == domain.ValidateQuantity(q)
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}

func TestValidateQuantity_Boundaries(t *testing.T) {
	assert.False(t, domain.ValidateQuantity(0))
	assert.True(t, domain.ValidateQuantity(1))
	assert.True(t, domain.ValidateQuantity(99))
	assert.False(t, domain.ValidateQuantity(100))
	assert.False(t, domain.ValidateQuantity(-1))
}

// Property: normalized lines never repeat a product, never hold quantity
// outside [1,99], and always price as unit × quantity.
func TestNormalizeLines_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("line invariants hold", prop.ForAll(
		func(ids []int, qtys []int) bool {
			var lines []domain.CartLine
			for i := 0; i < len(ids) && i < len(qtys); i++ {
				lines = append(lines, domain.CartLine{
					ProductID: string(rune('a' + ids[i])),
					Quantity:  qtys[i],
					UnitPrice: decimal.NewFromFloat(2.5),
				})
			}

			out := domain.NormalizeLines(lines)
			seen := map[string]bool{}
			for _, l := range out {
				if seen[l.ProductID] || !domain.ValidateQuantity(l.Quantity) {
					return false
				}
				seen[l.ProductID] = true
				if !l.TotalPrice.Equal(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.IntRange(-3, 80)),
	))

	properties.TestingRun(t)
}

func TestNormalizeLines_MergesKeepsOrderAndDropsZero(t *testing.T) {
	lines := []domain.CartLine{
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "p1", Quantity: 60, UnitPrice: decimal.NewFromInt(3)},
		{ProductID: "p3", Quantity: 0, UnitPrice: decimal.NewFromInt(1)},
		{ProductID: "p1", Quantity: 60, UnitPrice: decimal.NewFromInt(3)},
	}

	out := domain.NormalizeLines(lines)

	require.Len(t, out, 2)
	assert.Equal(t, "p2", out[0].ProductID)
	assert.Equal(t, "p1", out[1].ProductID)
	assert.Equal(t, 99, out[1].Quantity, "merged quantity is clamped")
	assert.True(t, out[1].TotalPrice.Equal(decimal.NewFromInt(297)))
}

func TestCart_RecalculateAndSummary(t *testing.T) {
	discounted := decimal.NewFromInt(18)
	cart := &domain.Cart{
		Identity: domain.Identity{Kind: domain.IdentityAuthenticated, UserID: "u1"},
		Lines: []domain.CartLine{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(5)},
			{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		},
		DiscountAmount:  decimal.NewFromInt(2),
		DiscountedTotal: &discounted,
	}

	cart.Recalculate()

	assert.Equal(t, 3, cart.TotalItems)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(20)))
	assert.True(t, cart.EffectiveTotal().Equal(discounted))

	line, ok := cart.Line("p1")
	require.True(t, ok)
	assert.True(t, line.TotalPrice.Equal(decimal.NewFromInt(10)))

	s := cart.Summary()
	assert.Equal(t, 2, s.LineCount)
	assert.Equal(t, 3, s.TotalItems)
}

func TestCart_EmptyAndEffectiveTotal(t *testing.T) {
	var nilCart *domain.Cart
	assert.True(t, nilCart.IsEmpty())

	cart := domain.EmptyCart(domain.Identity{Kind: domain.IdentityGuest, SessionID: "guest_1"})
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.EffectiveTotal().IsZero())
	assert.Equal(t, domain.IdentityGuest, cart.Identity.Kind)
}

func TestProductSummary_HasDisplayData(t *testing.T) {
	var nilProduct *domain.ProductSummary
	assert.False(t, nilProduct.HasDisplayData())
	assert.False(t, (&domain.ProductSummary{Name: "Mug", Images: []string{""}}).HasDisplayData())
	assert.True(t, (&domain.ProductSummary{Name: "Mug", Images: []string{"mug.jpg"}}).HasDisplayData())
}

func TestWishlist_Contains(t *testing.T) {
	w := &domain.Wishlist{Items: []domain.WishlistItem{{ProductID: "p1"}}}
	assert.True(t, w.Contains("p1"))
	assert.False(t, w.Contains("p2"))

	var nilList *domain.Wishlist
	assert.False(t, nilList.Contains("p1"))
}
