package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/telemetry"
)

// FavoritesAPI is the bearer-authorized wishlist service.
type FavoritesAPI interface {
	List(ctx context.Context, token string) (*backend.FavoriteList, error)
	Add(ctx context.Context, token, productID string) error
	Remove(ctx context.Context, token, productID string) error
	Check(ctx context.Context, token, productID string) (bool, error)
}

// WishlistConfig holds wishlist policy.
type WishlistConfig struct {
	// CheckEnabled answers IsInWishlist from the per-product check
	// endpoint. When false the full list is read instead.
	CheckEnabled bool
}

// WishlistRepository manages a signed-in shopper's saved products. Every
// operation requires authentication; every successful mutation publishes
// eventbus.WishlistUpdated.
type WishlistRepository interface {
	GetWishlist(ctx context.Context) (*domain.Wishlist, error)
	AddItem(ctx context.Context, productID string) (*domain.Wishlist, error)
	RemoveItem(ctx context.Context, productID string) (*domain.Wishlist, error)
	ClearWishlist(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	IsInWishlist(ctx context.Context, productID string) (bool, error)
}

type wishlistRepository struct {
	auth      auth.Service
	favorites FavoritesAPI
	enricher  *ProductEnricher
	bus       *eventbus.Bus
	config    WishlistConfig
	metrics   *telemetry.CartMetrics
	reporter  telemetry.Reporter
	logger    *slog.Logger
}

// NewWishlistRepository creates a WishlistRepository. enricher, metrics and
// reporter may be nil.
func NewWishlistRepository(
	authService auth.Service,
	favorites FavoritesAPI,
	enricher *ProductEnricher,
	bus *eventbus.Bus,
	config WishlistConfig,
	metrics *telemetry.CartMetrics,
	reporter telemetry.Reporter,
	logger *slog.Logger,
) WishlistRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = telemetry.SentryReporter{}
	}
	return &wishlistRepository{
		auth:      authService,
		favorites: favorites,
		enricher:  enricher,
		bus:       bus,
		config:    config,
		metrics:   metrics,
		reporter:  reporter,
		logger:    logger.With("service", "wishlist"),
	}
}

func (w *wishlistRepository) token(ctx context.Context, op string) (string, error) {
	if !w.auth.IsAuthenticated(ctx) {
		return "", authRequired(op, auth.ErrNotAuthenticated)
	}
	token, err := w.auth.IDToken(ctx)
	if err != nil {
		return "", authRequired(op, err)
	}
	return token, nil
}

func (w *wishlistRepository) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	w.metrics.RecordOperation(op, string(domain.IdentityAuthenticated), outcome, time.Since(start))
}

func (w *wishlistRepository) notify(ctx context.Context, productID string) {
	w.bus.Publish(ctx, eventbus.Event{Topic: eventbus.WishlistUpdated, ProductID: productID})
}

func (w *wishlistRepository) list(ctx context.Context, op, token string) (*domain.Wishlist, error) {
	l, err := w.favorites.List(ctx, token)
	if err != nil {
		return nil, readError(op, err)
	}
	return normalizeWishlist(l), nil
}

func (w *wishlistRepository) enrich(ctx context.Context, list *domain.Wishlist) {
	if w.enricher == nil || len(list.Items) == 0 {
		return
	}
	products := w.enricher.Enrich(ctx, list.ProductRefs(), enrichContextWishlist)
	for i := range list.Items {
		if p, ok := products[list.Items[i].ProductID]; ok {
			list.Items[i].Product = p
		}
	}
}

func (w *wishlistRepository) GetWishlist(ctx context.Context) (list *domain.Wishlist, err error) {
	defer func(start time.Time) { w.observe(opWishlistGet, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistGet)
	if err != nil {
		return nil, err
	}

	list, err = w.list(ctx, opWishlistGet, token)
	if err != nil {
		return nil, err
	}
	w.enrich(ctx, list)
	return list, nil
}

func (w *wishlistRepository) AddItem(ctx context.Context, productID string) (list *domain.Wishlist, err error) {
	if err := requireProductID(opWishlistAdd, productID); err != nil {
		return nil, err
	}
	defer func(start time.Time) { w.observe(opWishlistAdd, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistAdd)
	if err != nil {
		return nil, err
	}

	if err := w.favorites.Add(ctx, token, productID); err != nil {
		return nil, mutationError(opWishlistAdd, err)
	}
	w.notify(ctx, productID)

	list, err = w.list(ctx, opWishlistAdd, token)
	if err != nil {
		return nil, &refetchError{err: err}
	}
	w.enrich(ctx, list)
	return list, nil
}

func (w *wishlistRepository) RemoveItem(ctx context.Context, productID string) (list *domain.Wishlist, err error) {
	if err := requireProductID(opWishlistRemove, productID); err != nil {
		return nil, err
	}
	defer func(start time.Time) { w.observe(opWishlistRemove, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistRemove)
	if err != nil {
		return nil, err
	}

	if err := w.favorites.Remove(ctx, token, productID); err != nil {
		return nil, mutationError(opWishlistRemove, err)
	}
	w.notify(ctx, productID)

	list, err = w.list(ctx, opWishlistRemove, token)
	if err != nil {
		return nil, &refetchError{err: err}
	}
	w.enrich(ctx, list)
	return list, nil
}

// ClearWishlist removes every saved product one at a time. Mixed results
// return *domain.PartialClearError.
func (w *wishlistRepository) ClearWishlist(ctx context.Context) (err error) {
	defer func(start time.Time) { w.observe(opWishlistClear, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistClear)
	if err != nil {
		return err
	}

	list, err := w.list(ctx, opWishlistClear, token)
	if err != nil {
		return err
	}

	var (
		removed []string
		failed  []string
		errs    []error
	)
	for _, it := range list.Items {
		if err := w.favorites.Remove(ctx, token, it.ProductID); err != nil && !backend.IsStatus(err, http.StatusNotFound) {
			failed = append(failed, it.ProductID)
			errs = append(errs, mutationError(opWishlistClear, err))
			continue
		}
		removed = append(removed, it.ProductID)
	}

	if len(removed) > 0 {
		w.notify(ctx, "")
	}

	switch {
	case len(failed) == 0:
		return nil
	case len(removed) == 0:
		return errs[0]
	}

	partial := &domain.PartialClearError{
		Op:      opWishlistClear,
		Removed: removed,
		Failed:  failed,
		Err:     errors.Join(errs...),
	}
	w.logger.Warn("wishlist partially cleared", "removed", len(removed), "failed", failed, "error", partial.Err)
	w.reporter.Capture(partial, map[string]string{"op": opWishlistClear})
	return partial
}

func (w *wishlistRepository) Count(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { w.observe(opWishlistCount, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistCount)
	if err != nil {
		return 0, err
	}

	list, err := w.list(ctx, opWishlistCount, token)
	if err != nil {
		return 0, err
	}
	return len(list.Items), nil
}

func (w *wishlistRepository) IsInWishlist(ctx context.Context, productID string) (in bool, err error) {
	if err := requireProductID(opWishlistCheck, productID); err != nil {
		return false, err
	}
	defer func(start time.Time) { w.observe(opWishlistCheck, start, err) }(time.Now())

	token, err := w.token(ctx, opWishlistCheck)
	if err != nil {
		return false, err
	}

	if w.config.CheckEnabled {
		in, err := w.favorites.Check(ctx, token, productID)
		if err != nil {
			return false, readError(opWishlistCheck, err)
		}
		return in, nil
	}

	list, err := w.list(ctx, opWishlistCheck, token)
	if err != nil {
		return false, err
	}
	return list.Contains(productID), nil
}
