package cache

// GuestCartKey is the snapshot key for a guest session's cart.
func GuestCartKey(sessionID string) string {
	return "guest_cart:" + sessionID
}

// ProductKey is the per-product record key.
func ProductKey(productID string) string {
	return "product:" + productID
}

// ProductMapKey is the aggregate product-detail map for one caller context
// (e.g., "cart", "wishlist").
func ProductMapKey(context string) string {
	return "product_map:" + context
}
