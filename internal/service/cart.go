package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/telemetry"
)

// Caller contexts for aggregate product maps.
const (
	enrichContextCart     = "cart"
	enrichContextWishlist = "wishlist"
)

// AuthCartAPI is the bearer-authorized cart service.
type AuthCartAPI interface {
	Get(ctx context.Context, token string) (*backend.AuthCart, error)
	AddItem(ctx context.Context, token, productID string, quantity int) error
	UpdateItem(ctx context.Context, token, productID string, quantity int) error
	RemoveItem(ctx context.Context, token, productID string) error
	Increment(ctx context.Context, token, productID string) error
	Decrement(ctx context.Context, token, productID string) error
	Summary(ctx context.Context, token string) (*backend.CartSummary, error)
	Count(ctx context.Context, token string) (int, error)
	Validate(ctx context.Context, token string) (*backend.Validation, error)
	ApplyCoupon(ctx context.Context, token, code string) error
	RemoveCoupon(ctx context.Context, token string) error
	Migrate(ctx context.Context, token, sessionID string) (*backend.AuthCart, error)
}

// GuestCartAPI is the session-scoped cart service. Mutations return the
// resulting cart.
type GuestCartAPI interface {
	Get(ctx context.Context, sessionID string) (*backend.GuestCart, error)
	AddItem(ctx context.Context, sessionID, productID string, quantity int) (*backend.GuestCart, error)
	UpdateItem(ctx context.Context, sessionID, productID string, quantity int) (*backend.GuestCart, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*backend.GuestCart, error)
	Increment(ctx context.Context, sessionID, productID string) (*backend.GuestCart, error)
	Decrement(ctx context.Context, sessionID, productID string) (*backend.GuestCart, error)
	Validate(ctx context.Context, sessionID string) (*backend.Validation, error)
}

// SessionProvider issues the guest session id.
type SessionProvider interface {
	GetOrCreateSessionID(ctx context.Context) string
	Current(ctx context.Context) (string, bool)
	Clear(ctx context.Context)
}

// CartRepository is the single entry point to the shopper's cart. Each call
// resolves the current identity once and routes to the guest or
// authenticated cart service. Every successful mutation publishes
// eventbus.CartUpdated.
type CartRepository interface {
	AddItem(ctx context.Context, productID string, quantity int) (*domain.Cart, error)
	GetCart(ctx context.Context) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context) error
	IncrementItem(ctx context.Context, productID string) (*domain.Cart, error)
	DecrementItem(ctx context.Context, productID string) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context) (*domain.Cart, error)
	GetSummary(ctx context.Context) (domain.Summary, error)
	GetItemCount(ctx context.Context) (int, error)
	IsCartEmpty(ctx context.Context) (bool, error)
	GetCartTotal(ctx context.Context) (decimal.Decimal, error)
	ValidateCart(ctx context.Context) (*domain.CartValidation, error)
}

type cartRepository struct {
	auth       auth.Service
	sessions   SessionProvider
	authCarts  AuthCartAPI
	guestCarts GuestCartAPI
	enricher   *ProductEnricher
	guestCache *cache.TTLCache[domain.Cart]
	bus        *eventbus.Bus
	metrics    *telemetry.CartMetrics
	reporter   telemetry.Reporter
	logger     *slog.Logger
	now        func() time.Time

	guestFlight singleflight.Group
}

// NewCartRepository creates a CartRepository. enricher, metrics and
// reporter may be nil.
func NewCartRepository(
	authService auth.Service,
	sessions SessionProvider,
	authCarts AuthCartAPI,
	guestCarts GuestCartAPI,
	enricher *ProductEnricher,
	guestCache *cache.TTLCache[domain.Cart],
	bus *eventbus.Bus,
	metrics *telemetry.CartMetrics,
	reporter telemetry.Reporter,
	logger *slog.Logger,
) CartRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = telemetry.SentryReporter{}
	}
	return &cartRepository{
		auth:       authService,
		sessions:   sessions,
		authCarts:  authCarts,
		guestCarts: guestCarts,
		enricher:   enricher,
		guestCache: guestCache,
		bus:        bus,
		metrics:    metrics,
		reporter:   reporter,
		logger:     logger.With("service", "cart"),
		now:        time.Now,
	}
}

// resolve snapshots the identity for one operation.
func (r *cartRepository) resolve(ctx context.Context) cartBackend {
	if r.auth.IsAuthenticated(ctx) {
		token, err := r.auth.IDToken(ctx)
		if err == nil {
			return &authCartBackend{r: r, token: token}
		}
		r.logger.Debug("signed out while resolving identity, using guest cart", "error", err)
	}
	return &guestCartBackend{r: r, sessionID: r.sessions.GetOrCreateSessionID(ctx)}
}

func (r *cartRepository) observe(op string, b cartBackend, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	r.metrics.RecordOperation(op, string(b.kind()), outcome, time.Since(start))
}

// notify publishes CartUpdated when the mutation reached the server, even if
// the follow-up read failed.
func (r *cartRepository) notify(ctx context.Context, productID string, err error) {
	var re *refetchError
	if err != nil && !errors.As(err, &re) {
		return
	}
	r.bus.Publish(ctx, eventbus.Event{Topic: eventbus.CartUpdated, ProductID: productID})
}

func (r *cartRepository) enrich(ctx context.Context, cart *domain.Cart) {
	if r.enricher == nil || cart.IsEmpty() {
		return
	}
	applyProducts(cart, r.enricher.Enrich(ctx, cart.ProductRefs(), enrichContextCart))
}

func requireProductID(op, productID string) error {
	if strings.TrimSpace(productID) == "" {
		return domain.NewValidationError(op, "product_id", "is required")
	}
	return nil
}

func (r *cartRepository) AddItem(ctx context.Context, productID string, quantity int) (cart *domain.Cart, err error) {
	if err := requireProductID(opAddItem, productID); err != nil {
		return nil, err
	}
	if err := domain.CheckQuantity(opAddItem, quantity); err != nil {
		return nil, err
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opAddItem, b, start, err) }(time.Now())

	cart, err = b.add(ctx, opAddItem, productID, quantity)
	r.notify(ctx, productID, err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

func (r *cartRepository) GetCart(ctx context.Context) (cart *domain.Cart, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opGetCart, b, start, err) }(time.Now())

	cart, err = b.fetch(ctx, opGetCart)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

// UpdateItemQuantity sets a line's quantity. Quantities outside [1, 99] are
// rejected without contacting the cart service.
func (r *cartRepository) UpdateItemQuantity(ctx context.Context, productID string, quantity int) (cart *domain.Cart, err error) {
	if err := requireProductID(opUpdateQuantity, productID); err != nil {
		return nil, err
	}
	if err := domain.CheckQuantity(opUpdateQuantity, quantity); err != nil {
		return nil, err
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opUpdateQuantity, b, start, err) }(time.Now())

	cart, err = b.update(ctx, opUpdateQuantity, productID, quantity)
	r.notify(ctx, productID, err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, productID string) (cart *domain.Cart, err error) {
	if err := requireProductID(opRemoveItem, productID); err != nil {
		return nil, err
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opRemoveItem, b, start, err) }(time.Now())

	cart, err = b.remove(ctx, opRemoveItem, productID)
	r.notify(ctx, productID, err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

// ClearCart removes every line one at a time against a single identity.
// When some removals fail and others succeed it returns
// *domain.PartialClearError; when all fail it returns the first failure.
// Clearing an empty cart is a no-op.
func (r *cartRepository) ClearCart(ctx context.Context) (err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opClearCart, b, start, err) }(time.Now())

	cart, err := b.fetch(ctx, opClearCart)
	if err != nil {
		return err
	}
	if cart.IsEmpty() {
		return nil
	}

	var (
		removed []string
		failed  []string
		errs    []error
	)
	for _, line := range cart.Lines {
		if err := b.discard(ctx, opClearCart, line.ProductID); err != nil && !domain.IsCode(err, domain.ENOTFOUND) {
			failed = append(failed, line.ProductID)
			errs = append(errs, err)
			continue
		}
		removed = append(removed, line.ProductID)
	}

	if len(removed) > 0 {
		r.bus.Publish(ctx, eventbus.Event{Topic: eventbus.CartUpdated})
	}

	switch {
	case len(failed) == 0:
		return nil
	case len(removed) == 0:
		return errs[0]
	}

	partial := &domain.PartialClearError{
		Op:      opClearCart,
		Removed: removed,
		Failed:  failed,
		Err:     errors.Join(errs...),
	}
	r.logger.Warn("cart partially cleared",
		"identity", string(b.kind()),
		"removed", len(removed),
		"failed", failed,
		"error", partial.Err,
	)
	r.reporter.Capture(partial, map[string]string{"op": opClearCart, "identity": string(b.kind())})
	return partial
}

// IncrementItem raises a line by one using the service's atomic increment.
// A missing line is added with quantity 1; a line already at the maximum is
// rejected with a ValidationError.
func (r *cartRepository) IncrementItem(ctx context.Context, productID string) (cart *domain.Cart, err error) {
	if err := requireProductID(opIncrement, productID); err != nil {
		return nil, err
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opIncrement, b, start, err) }(time.Now())

	current, err := b.fetch(ctx, opIncrement)
	if err != nil {
		return nil, err
	}

	line, ok := current.Line(productID)
	switch {
	case !ok:
		cart, err = b.add(ctx, opIncrement, productID, domain.MinQuantity)
	case line.Quantity >= domain.MaxQuantity:
		return nil, domain.NewValidationError(opIncrement, "quantity",
			fmt.Sprintf("cannot exceed %d", domain.MaxQuantity))
	default:
		cart, err = b.increment(ctx, opIncrement, productID)
	}

	r.notify(ctx, productID, err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

// DecrementItem lowers a line by one. A line at quantity 1 is removed
// rather than stored at zero.
func (r *cartRepository) DecrementItem(ctx context.Context, productID string) (cart *domain.Cart, err error) {
	if err := requireProductID(opDecrement, productID); err != nil {
		return nil, err
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opDecrement, b, start, err) }(time.Now())

	current, err := b.fetch(ctx, opDecrement)
	if err != nil {
		return nil, err
	}

	line, ok := current.Line(productID)
	switch {
	case !ok:
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: opDecrement, Message: ErrLineNotFound.Message}
	case line.Quantity <= domain.MinQuantity:
		cart, err = b.remove(ctx, opDecrement, productID)
	default:
		cart, err = b.decrement(ctx, opDecrement, productID)
	}

	r.notify(ctx, productID, err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

// ApplyCoupon applies a discount code. Guest carts have no server-side
// discounts, so a guest gets an EUNSUPPORTED error.
func (r *cartRepository) ApplyCoupon(ctx context.Context, code string) (cart *domain.Cart, err error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.NewValidationError(opApplyCoupon, "coupon_code", "is required")
	}

	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opApplyCoupon, b, start, err) }(time.Now())

	ab, ok := b.(*authCartBackend)
	if !ok {
		return nil, domain.Unsupported(opApplyCoupon, "Sign in to use coupon codes")
	}

	cart, err = ab.applyCoupon(ctx, opApplyCoupon, code)
	r.notify(ctx, "", err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

func (r *cartRepository) RemoveCoupon(ctx context.Context) (cart *domain.Cart, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opRemoveCoupon, b, start, err) }(time.Now())

	ab, ok := b.(*authCartBackend)
	if !ok {
		return nil, domain.Unsupported(opRemoveCoupon, "Guest carts have no coupon to remove")
	}

	cart, err = ab.removeCoupon(ctx, opRemoveCoupon)
	r.notify(ctx, "", err)
	if err != nil {
		return nil, err
	}

	r.enrich(ctx, cart)
	return cart, nil
}

func (r *cartRepository) GetSummary(ctx context.Context) (s domain.Summary, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opSummary, b, start, err) }(time.Now())

	return b.summary(ctx, opSummary)
}

// GetItemCount returns the total quantity across lines.
func (r *cartRepository) GetItemCount(ctx context.Context) (n int, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opItemCount, b, start, err) }(time.Now())

	return b.count(ctx, opItemCount)
}

func (r *cartRepository) IsCartEmpty(ctx context.Context) (empty bool, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opIsEmpty, b, start, err) }(time.Now())

	n, err := b.count(ctx, opIsEmpty)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// GetCartTotal returns what the shopper would pay, after any discount.
func (r *cartRepository) GetCartTotal(ctx context.Context) (total decimal.Decimal, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opCartTotal, b, start, err) }(time.Now())

	s, err := b.summary(ctx, opCartTotal)
	if err != nil {
		return decimal.Zero, err
	}
	return s.EffectiveTotal(), nil
}

func (r *cartRepository) ValidateCart(ctx context.Context) (v *domain.CartValidation, err error) {
	b := r.resolve(ctx)
	defer func(start time.Time) { r.observe(opValidate, b, start, err) }(time.Now())

	return b.validate(ctx, opValidate)
}
