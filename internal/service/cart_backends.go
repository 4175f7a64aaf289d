package service

import (
	"context"
	"net/http"
	"slices"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
)

// cartBackend is one identity's view of the cart service. Implementations
// map transport errors to domain errors using the op they are given.
type cartBackend interface {
	kind() domain.IdentityKind
	fetch(ctx context.Context, op string) (*domain.Cart, error)
	add(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error)
	update(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error)
	remove(ctx context.Context, op, productID string) (*domain.Cart, error)
	// discard removes a line without returning the resulting cart.
	discard(ctx context.Context, op, productID string) error
	increment(ctx context.Context, op, productID string) (*domain.Cart, error)
	decrement(ctx context.Context, op, productID string) (*domain.Cart, error)
	summary(ctx context.Context, op string) (domain.Summary, error)
	count(ctx context.Context, op string) (int, error)
	validate(ctx context.Context, op string) (*domain.CartValidation, error)
}

// refetchError means a mutation was applied but re-reading the cart failed.
type refetchError struct {
	err error
}

func (e *refetchError) Error() string { return e.err.Error() }
func (e *refetchError) Unwrap() error { return e.err }

// authCartBackend never caches: the service is the only source of truth
// for a signed-in shopper. Mutations are acknowledged and then the full
// cart is re-read.
type authCartBackend struct {
	r     *cartRepository
	token string
}

func (b *authCartBackend) kind() domain.IdentityKind { return domain.IdentityAuthenticated }

func (b *authCartBackend) fetch(ctx context.Context, op string) (*domain.Cart, error) {
	c, err := b.r.authCarts.Get(ctx, b.token)
	if err != nil {
		return nil, readError(op, err)
	}
	return normalizeAuthCart(c, b.r.now()), nil
}

func (b *authCartBackend) refetch(ctx context.Context, op string) (*domain.Cart, error) {
	cart, err := b.fetch(ctx, op)
	if err != nil {
		return nil, &refetchError{err: err}
	}
	return cart, nil
}

func (b *authCartBackend) mutate(ctx context.Context, op string, err error) (*domain.Cart, error) {
	if err != nil {
		return nil, mutationError(op, err)
	}
	return b.refetch(ctx, op)
}

func (b *authCartBackend) add(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.AddItem(ctx, b.token, productID, quantity))
}

func (b *authCartBackend) update(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.UpdateItem(ctx, b.token, productID, quantity))
}

func (b *authCartBackend) remove(ctx context.Context, op, productID string) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.RemoveItem(ctx, b.token, productID))
}

func (b *authCartBackend) discard(ctx context.Context, op, productID string) error {
	return mutationError(op, b.r.authCarts.RemoveItem(ctx, b.token, productID))
}

func (b *authCartBackend) increment(ctx context.Context, op, productID string) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.Increment(ctx, b.token, productID))
}

func (b *authCartBackend) decrement(ctx context.Context, op, productID string) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.Decrement(ctx, b.token, productID))
}

func (b *authCartBackend) applyCoupon(ctx context.Context, op, code string) (*domain.Cart, error) {
	if err := b.r.authCarts.ApplyCoupon(ctx, b.token, code); err != nil {
		return nil, couponError(op, err)
	}
	return b.refetch(ctx, op)
}

func (b *authCartBackend) removeCoupon(ctx context.Context, op string) (*domain.Cart, error) {
	return b.mutate(ctx, op, b.r.authCarts.RemoveCoupon(ctx, b.token))
}

func (b *authCartBackend) summary(ctx context.Context, op string) (domain.Summary, error) {
	s, err := b.r.authCarts.Summary(ctx, b.token)
	if err != nil {
		return domain.Summary{}, readError(op, err)
	}
	return normalizeSummary(s), nil
}

func (b *authCartBackend) count(ctx context.Context, op string) (int, error) {
	n, err := b.r.authCarts.Count(ctx, b.token)
	if err != nil {
		return 0, readError(op, err)
	}
	return n, nil
}

func (b *authCartBackend) validate(ctx context.Context, op string) (*domain.CartValidation, error) {
	v, err := b.r.authCarts.Validate(ctx, b.token)
	if err != nil {
		return nil, readError(op, err)
	}
	return normalizeValidation(v), nil
}

// guestCartBackend serves reads from the guest cart cache while it is fresh
// and refreshes the cache with every cart the service returns.
type guestCartBackend struct {
	r         *cartRepository
	sessionID string
}

func (b *guestCartBackend) kind() domain.IdentityKind { return domain.IdentityGuest }

func (b *guestCartBackend) key() string {
	return cache.GuestCartKey(b.sessionID)
}

func (b *guestCartBackend) fetch(ctx context.Context, op string) (*domain.Cart, error) {
	if cached, ok := b.r.guestCache.Get(ctx, b.key()); ok {
		return &cached, nil
	}

	// Concurrent views mounting at once share one request. The request
	// outlives any single caller's cancellation; each caller still stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := b.r.guestFlight.DoChan(b.sessionID, func() (any, error) {
		gc, err := b.r.guestCarts.Get(shared, b.sessionID)
		if backend.IsStatus(err, http.StatusNotFound) {
			// The service has not seen this session yet.
			gc, err = &backend.GuestCart{SessionID: b.sessionID}, nil
		}
		if err != nil {
			return nil, err
		}
		return b.store(shared, gc), nil
	})

	select {
	case <-ctx.Done():
		return nil, readError(op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, readError(op, res.Err)
		}
		return cloneCart(res.Val.(*domain.Cart)), nil
	}
}

func (b *guestCartBackend) store(ctx context.Context, gc *backend.GuestCart) *domain.Cart {
	cart := normalizeGuestCart(gc, b.sessionID, b.r.now())
	b.r.guestCache.Set(ctx, b.key(), *cart)
	return cart
}

func (b *guestCartBackend) mutate(ctx context.Context, op string, gc *backend.GuestCart, err error) (*domain.Cart, error) {
	if err != nil {
		return nil, mutationError(op, err)
	}
	return b.store(ctx, gc), nil
}

func (b *guestCartBackend) add(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error) {
	gc, err := b.r.guestCarts.AddItem(ctx, b.sessionID, productID, quantity)
	return b.mutate(ctx, op, gc, err)
}

func (b *guestCartBackend) update(ctx context.Context, op, productID string, quantity int) (*domain.Cart, error) {
	gc, err := b.r.guestCarts.UpdateItem(ctx, b.sessionID, productID, quantity)
	return b.mutate(ctx, op, gc, err)
}

func (b *guestCartBackend) remove(ctx context.Context, op, productID string) (*domain.Cart, error) {
	gc, err := b.r.guestCarts.RemoveItem(ctx, b.sessionID, productID)
	return b.mutate(ctx, op, gc, err)
}

func (b *guestCartBackend) discard(ctx context.Context, op, productID string) error {
	_, err := b.remove(ctx, op, productID)
	return err
}

func (b *guestCartBackend) increment(ctx context.Context, op, productID string) (*domain.Cart, error) {
	gc, err := b.r.guestCarts.Increment(ctx, b.sessionID, productID)
	return b.mutate(ctx, op, gc, err)
}

func (b *guestCartBackend) decrement(ctx context.Context, op, productID string) (*domain.Cart, error) {
	gc, err := b.r.guestCarts.Decrement(ctx, b.sessionID, productID)
	return b.mutate(ctx, op, gc, err)
}

// The guest service has no summary or count endpoints; both derive from
// the (possibly cached) cart.

func (b *guestCartBackend) summary(ctx context.Context, op string) (domain.Summary, error) {
	cart, err := b.fetch(ctx, op)
	if err != nil {
		return domain.Summary{}, err
	}
	return cart.Summary(), nil
}

func (b *guestCartBackend) count(ctx context.Context, op string) (int, error) {
	cart, err := b.fetch(ctx, op)
	if err != nil {
		return 0, err
	}
	return cart.TotalItems, nil
}

func (b *guestCartBackend) validate(ctx context.Context, op string) (*domain.CartValidation, error) {
	v, err := b.r.guestCarts.Validate(ctx, b.sessionID)
	if err != nil {
		return nil, readError(op, err)
	}
	return normalizeValidation(v), nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	return &cp
}
