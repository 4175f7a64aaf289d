package backend

import (
	"context"
	"net/http"
	"net/url"
)

func itemPath(productID string) string {
	return "/cart/items/" + url.PathEscape(productID)
}

// AuthCartClient calls the bearer-authorized cart endpoints.
type AuthCartClient struct {
	c *Client
}

func NewAuthCartClient(c *Client) *AuthCartClient {
	return &AuthCartClient{c: c}
}

func (a *AuthCartClient) Get(ctx context.Context, token string) (*AuthCart, error) {
	var cart AuthCart
	if err := a.c.Do(ctx, http.MethodGet, "/cart", nil, &cart, Bearer(token)); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Mutations only acknowledge; callers re-read the cart afterwards.

func (a *AuthCartClient) AddItem(ctx context.Context, token, productID string, quantity int) error {
	body := AddItemRequest{ProductID: productID, Quantity: quantity}
	return a.c.Do(ctx, http.MethodPost, "/cart/items", body, nil, Bearer(token))
}

func (a *AuthCartClient) UpdateItem(ctx context.Context, token, productID string, quantity int) error {
	body := UpdateQuantityRequest{Quantity: quantity}
	return a.c.Do(ctx, http.MethodPut, itemPath(productID), body, nil, Bearer(token))
}

func (a *AuthCartClient) RemoveItem(ctx context.Context, token, productID string) error {
	return a.c.Do(ctx, http.MethodDelete, itemPath(productID), nil, nil, Bearer(token))
}

func (a *AuthCartClient) Increment(ctx context.Context, token, productID string) error {
	return a.c.Do(ctx, http.MethodPost, itemPath(productID)+"/increment", nil, nil, Bearer(token))
}

func (a *AuthCartClient) Decrement(ctx context.Context, token, productID string) error {
	return a.c.Do(ctx, http.MethodPost, itemPath(productID)+"/decrement", nil, nil, Bearer(token))
}

func (a *AuthCartClient) Summary(ctx context.Context, token string) (*CartSummary, error) {
	var s CartSummary
	if err := a.c.Do(ctx, http.MethodGet, "/cart/summary", nil, &s, Bearer(token)); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *AuthCartClient) Count(ctx context.Context, token string) (int, error) {
	var n CartCount
	if err := a.c.Do(ctx, http.MethodGet, "/cart/count", nil, &n, Bearer(token)); err != nil {
		return 0, err
	}
	return n.Count, nil
}

func (a *AuthCartClient) Validate(ctx context.Context, token string) (*Validation, error) {
	var v Validation
	if err := a.c.Do(ctx, http.MethodGet, "/cart/validate", nil, &v, Bearer(token)); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *AuthCartClient) ApplyCoupon(ctx context.Context, token, code string) error {
	body := CouponRequest{CouponCode: code}
	return a.c.Do(ctx, http.MethodPost, "/cart/apply-coupon", body, nil, Bearer(token))
}

func (a *AuthCartClient) RemoveCoupon(ctx context.Context, token string) error {
	return a.c.Do(ctx, http.MethodDelete, "/cart/remove-coupon", nil, nil, Bearer(token))
}

// Migrate asks the service to merge the guest session's cart into the
// token holder's cart and returns the merged result.
func (a *AuthCartClient) Migrate(ctx context.Context, token, sessionID string) (*AuthCart, error) {
	var cart AuthCart
	if err := a.c.Do(ctx, http.MethodPost, "/cart/migrate", nil, &cart, Bearer(token), Session(sessionID)); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GuestCartClient calls the session-scoped cart endpoints. Every mutation
// returns the full guest cart.
type GuestCartClient struct {
	c *Client
}

func NewGuestCartClient(c *Client) *GuestCartClient {
	return &GuestCartClient{c: c}
}

func (g *GuestCartClient) do(ctx context.Context, method, path, sessionID string, body any) (*GuestCart, error) {
	var cart GuestCart
	if err := g.c.Do(ctx, method, path, body, &cart, Session(sessionID)); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (g *GuestCartClient) Get(ctx context.Context, sessionID string) (*GuestCart, error) {
	return g.do(ctx, http.MethodGet, "/cart", sessionID, nil)
}

func (g *GuestCartClient) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*GuestCart, error) {
	return g.do(ctx, http.MethodPost, "/cart/items", sessionID, AddItemRequest{ProductID: productID, Quantity: quantity})
}

func (g *GuestCartClient) UpdateItem(ctx context.Context, sessionID, productID string, quantity int) (*GuestCart, error) {
	return g.do(ctx, http.MethodPut, itemPath(productID), sessionID, UpdateQuantityRequest{Quantity: quantity})
}

func (g *GuestCartClient) RemoveItem(ctx context.Context, sessionID, productID string) (*GuestCart, error) {
	return g.do(ctx, http.MethodDelete, itemPath(productID), sessionID, nil)
}

func (g *GuestCartClient) Increment(ctx context.Context, sessionID, productID string) (*GuestCart, error) {
	return g.do(ctx, http.MethodPost, itemPath(productID)+"/increment", sessionID, nil)
}

func (g *GuestCartClient) Decrement(ctx context.Context, sessionID, productID string) (*GuestCart, error) {
	return g.do(ctx, http.MethodPost, itemPath(productID)+"/decrement", sessionID, nil)
}

func (g *GuestCartClient) Validate(ctx context.Context, sessionID string) (*Validation, error) {
	var v Validation
	if err := g.c.Do(ctx, http.MethodGet, "/cart/validate", nil, &v, Session(sessionID)); err != nil {
		return nil, err
	}
	return &v, nil
}
