package domain

import "time"

// WishlistItem is a saved product on an authenticated shopper's wishlist.
type WishlistItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	AddedAt   time.Time       `json:"added_at"`
	Product   *ProductSummary `json:"product,omitempty"`
}

// Wishlist is the ordered list of saved products.
type Wishlist struct {
	Items []WishlistItem `json:"items"`
}

// Contains reports whether productID is on the wishlist.
func (w *Wishlist) Contains(productID string) bool {
	if w == nil {
		return false
	}
	for _, it := range w.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// ProductRefs lists the products referenced by the wishlist.
func (w *Wishlist) ProductRefs() []ProductRef {
	refs := make([]ProductRef, 0, len(w.Items))
	for _, it := range w.Items {
		refs = append(refs, ProductRef{ProductID: it.ProductID, Product: it.Product})
	}
	return refs
}
