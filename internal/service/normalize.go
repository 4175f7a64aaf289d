package service

import (
	"time"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/domain"
)

// normalizeAuthCart converts the authenticated cart shape into a Cart.
func normalizeAuthCart(c *backend.AuthCart, fetchedAt time.Time) *domain.Cart {
	cart := &domain.Cart{
		ID:              c.ID,
		Identity:        domain.Identity{Kind: domain.IdentityAuthenticated, UserID: c.UserID},
		Lines:           make([]domain.CartLine, 0, len(c.Items)),
		DiscountAmount:  c.DiscountAmount,
		DiscountedTotal: c.DiscountedTotal,
		CouponCode:      c.CouponCode,
		FetchedAt:       fetchedAt,
	}
	for _, it := range c.Items {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			Product:    it.Product.Summary(),
		})
	}
	cart.Recalculate()
	return cart
}

// normalizeGuestCart converts the guest cart shape into a Cart. Guest lines
// have no id of their own; the product id stands in.
func normalizeGuestCart(c *backend.GuestCart, sessionID string, fetchedAt time.Time) *domain.Cart {
	if c.SessionID != "" {
		sessionID = c.SessionID
	}
	cart := &domain.Cart{
		ID:        sessionID,
		Identity:  domain.Identity{Kind: domain.IdentityGuest, SessionID: sessionID},
		Lines:     make([]domain.CartLine, 0, len(c.Items)),
		FetchedAt: fetchedAt,
	}
	for _, it := range c.Items {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:        it.ProductID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			Product:   it.Product.Summary(),
		})
	}
	cart.Recalculate()
	return cart
}

func normalizeSummary(s *backend.CartSummary) domain.Summary {
	return domain.Summary{
		TotalItems:      s.TotalItems,
		LineCount:       s.ItemCount,
		TotalPrice:      s.TotalPrice,
		DiscountAmount:  s.DiscountAmount,
		DiscountedTotal: s.DiscountedTotal,
		CouponCode:      s.CouponCode,
	}
}

func normalizeValidation(v *backend.Validation) *domain.CartValidation {
	out := &domain.CartValidation{Valid: v.Valid}
	for _, is := range v.Issues {
		out.Issues = append(out.Issues, domain.ValidationIssue{
			ProductID: is.ProductID,
			Reason:    is.Reason,
			Available: is.Available,
		})
	}
	return out
}

func normalizeWishlist(l *backend.FavoriteList) *domain.Wishlist {
	w := &domain.Wishlist{Items: make([]domain.WishlistItem, 0, len(l.Items))}
	for _, f := range l.Items {
		w.Items = append(w.Items, domain.WishlistItem{
			ID:        f.ID,
			ProductID: f.ProductID,
			AddedAt:   f.CreatedAt,
			Product:   f.Product.Summary(),
		})
	}
	return w
}
