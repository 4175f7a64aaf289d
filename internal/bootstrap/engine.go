// Package bootstrap wires the cart engine from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/cartsync/internal"
	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/service"
	"github.com/dukerupert/cartsync/internal/session"
	"github.com/dukerupert/cartsync/internal/storage"
	"github.com/dukerupert/cartsync/internal/telemetry"
)

// Engine is a fully wired cart engine.
type Engine struct {
	Auth      *auth.TokenSession
	Sessions  *session.Manager
	Bus       *eventbus.Bus
	Carts     service.CartRepository
	Wishlist  service.WishlistRepository
	Migration *service.MigrationCoordinator
	Registry  *prometheus.Registry

	logger  *slog.Logger
	closers []func() error
}

type engineOptions struct {
	store    storage.Store
	registry *prometheus.Registry
	conn     eventbus.Conn
}

// EngineOption overrides a dependency NewEngine would otherwise build.
type EngineOption func(*engineOptions)

// WithStore uses store instead of the configured storage provider. The
// caller keeps ownership of store and closes it after the engine.
func WithStore(store storage.Store) EngineOption {
	return func(o *engineOptions) { o.store = store }
}

// WithRegistry registers engine metrics on reg.
func WithRegistry(reg *prometheus.Registry) EngineOption {
	return func(o *engineOptions) { o.registry = reg }
}

// WithEventConn relays bus events over conn instead of dialing the
// configured NATS server.
func WithEventConn(conn eventbus.Conn) EngineOption {
	return func(o *engineOptions) { o.conn = conn }
}

// NewEngine builds the engine. Call Close when done.
func NewEngine(cfg *internal.Config, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{logger: logger}

	flush, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	e.closers = append(e.closers, func() error { flush(); return nil })

	store := o.store
	if store == nil {
		if store, err = storage.NewStore(cfg.Storage); err != nil {
			e.Close()
			return nil, fmt.Errorf("storage initialization failed: %w", err)
		}
		if c, ok := store.(io.Closer); ok {
			e.closers = append(e.closers, c.Close)
		}
	}

	e.Registry = o.registry
	if e.Registry == nil {
		e.Registry = prometheus.NewRegistry()
	}
	metrics := telemetry.NewCartMetrics(cfg.Metrics.Namespace, e.Registry)

	cacheOpts := []cache.Option{cache.WithRecorder(metrics), cache.WithLogger(logger)}
	guestCache := cache.New[domain.Cart](store, cache.ClassGuestCart, cfg.Cache.GuestCartTTL, cacheOpts...)
	records := cache.New[domain.ProductSummary](store, cache.ClassProduct, cfg.Cache.ProductTTL, cacheOpts...)
	productMaps := cache.New[map[string]domain.ProductSummary](store, cache.ClassProductMap, cfg.Cache.ProductTTL, cacheOpts...)

	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.Cart.Timeout),
		backend.WithRateLimit(cfg.Cart.RateLimit, cfg.Cart.RateBurst),
		backend.WithBreaker(cfg.Cart.BreakerFailures, cfg.Cart.BreakerTimeout),
		backend.WithLogger(logger),
	}
	authClient := backend.New(cfg.Cart.AuthBaseURL, clientOpts...)
	guestClient := backend.New(cfg.Cart.GuestBaseURL, clientOpts...)
	productClient := backend.New(cfg.Cart.ProductBaseURL, clientOpts...)
	authCarts := backend.NewAuthCartClient(authClient)

	e.Bus = eventbus.New(logger, metrics)
	if err := e.startRelay(cfg.Events, o.conn); err != nil {
		e.Close()
		return nil, err
	}

	e.Auth = auth.NewTokenSession(auth.WithLogger(logger))
	e.Sessions = session.NewManager(store, logger)

	reporter := telemetry.SentryReporter{}
	enricher := service.NewProductEnricher(backend.NewProductClient(productClient), records, productMaps,
		cfg.Cache.EnrichConcurrency, metrics, logger)

	e.Carts = service.NewCartRepository(e.Auth, e.Sessions, authCarts, backend.NewGuestCartClient(guestClient),
		enricher, guestCache, e.Bus, metrics, reporter, logger)
	e.Wishlist = service.NewWishlistRepository(e.Auth, backend.NewFavoritesClient(authClient), enricher, e.Bus,
		service.WishlistConfig{CheckEnabled: cfg.Wishlist.CheckEnabled}, metrics, reporter, logger)
	e.Migration = service.NewMigrationCoordinator(e.Auth, e.Sessions, authCarts, guestCache, e.Bus,
		metrics, reporter, logger)

	e.Auth.OnLogin(func(ctx context.Context, u *auth.User) { telemetry.SetUser(u.ID, u.Email) })
	e.Auth.OnLogin(e.Migration.HandleLogin)
	e.Auth.OnLogout(func(ctx context.Context, u *auth.User) { telemetry.ClearUser() })

	for _, topic := range eventbus.Topics {
		e.Bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
			telemetry.AddBreadcrumb("cartsync.event", string(ev.Topic),
				map[string]interface{}{"product_id": ev.ProductID, "relayed": eventbus.FromRelay(ctx)})
		})
	}

	logger.Info("cart engine ready",
		"auth_base_url", cfg.Cart.AuthBaseURL,
		"guest_base_url", cfg.Cart.GuestBaseURL,
		"storage", cfg.Storage.Provider,
		"relay", o.conn != nil || cfg.Events.NATSURL != "",
	)
	return e, nil
}

func (e *Engine) startRelay(cfg internal.EventsConfig, conn eventbus.Conn) error {
	if conn == nil && cfg.NATSURL == "" {
		return nil
	}

	if conn == nil {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("cartsync"))
		if err != nil {
			return fmt.Errorf("nats connection failed: %w", err)
		}
		e.closers = append(e.closers, nc.Drain)
		conn = nc
	}

	relay := eventbus.NewRelay(e.Bus, conn, cfg.Subject, e.logger)
	if err := relay.Start(); err != nil {
		return fmt.Errorf("event relay failed to start: %w", err)
	}
	e.closers = append(e.closers, relay.Close)
	return nil
}

// Close releases the engine's connections in reverse order of creation.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range slices.Backward(e.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
