package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/domain"
)

// Operation names used in errors, logs and metrics.
const (
	opAddItem        = "cart.add_item"
	opGetCart        = "cart.get"
	opUpdateQuantity = "cart.update_item_quantity"
	opRemoveItem     = "cart.remove_item"
	opClearCart      = "cart.clear"
	opIncrement      = "cart.increment_item"
	opDecrement      = "cart.decrement_item"
	opApplyCoupon    = "cart.apply_coupon"
	opRemoveCoupon   = "cart.remove_coupon"
	opSummary        = "cart.summary"
	opItemCount      = "cart.item_count"
	opIsEmpty        = "cart.is_empty"
	opCartTotal      = "cart.total"
	opValidate       = "cart.validate"

	opMigrate = "migration.migrate"

	opWishlistGet    = "wishlist.get"
	opWishlistAdd    = "wishlist.add_item"
	opWishlistRemove = "wishlist.remove_item"
	opWishlistClear  = "wishlist.clear"
	opWishlistCount  = "wishlist.count"
	opWishlistCheck  = "wishlist.is_in_wishlist"
)

// Errors returned by the service package.
var (
	ErrCouponInvalid = &domain.Error{Code: domain.EINVALID, Message: "This coupon code is not valid"}
	ErrLineNotFound  = &domain.Error{Code: domain.ENOTFOUND, Message: "This product is not in your cart"}
)

// mutationError translates a failed cart or wishlist mutation. Stock
// reasons become OutOfStock/ComingSoon; any other rejection is MutationFailed.
func mutationError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return readError(op, err)
	}

	switch apiErr.Reason() {
	case backend.ReasonOutOfStock:
		return &domain.Error{Code: domain.EOUTOFSTOCK, Op: op, Message: domain.ErrOutOfStock.Message, Err: err}
	case backend.ReasonComingSoon:
		return &domain.Error{Code: domain.ECOMINGSOON, Op: op, Message: domain.ErrComingSoon.Message, Err: err}
	}

	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return authRequired(op, err)
	case http.StatusNotFound:
		return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: ErrLineNotFound.Message, Err: err}
	}
	return domain.MutationFailed(err, op)
}

// readError translates a failed read. Every non-auth failure is a network
// failure from the caller's point of view.
func readError(op string, err error) error {
	if err == nil {
		return nil
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return authRequired(op, err)
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return authRequired(op, err)
		}
		return domain.Network(err, op)
	}

	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Network(err, op)
	}

	var decodeErr *backend.DecodeError
	if errors.As(err, &decodeErr) {
		return domain.Internal(err, op, "unexpected response from the cart service")
	}
	return domain.Internal(err, op, "cart operation failed")
}

// couponError keeps "bad code" distinct from a failed request.
func couponError(op string, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 &&
		apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden {
		return &domain.Error{Code: domain.EINVALID, Op: op, Message: ErrCouponInvalid.Message, Err: err}
	}
	return mutationError(op, err)
}

func authRequired(op string, err error) error {
	return &domain.Error{
		Code:    domain.EUNAUTHORIZED,
		Op:      op,
		Message: domain.ErrAuthenticationRequired.Message,
		Err:     err,
	}
}
