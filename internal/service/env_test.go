package service_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/devserver"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/service"
	"github.com/dukerupert/cartsync/internal/session"
	"github.com/dukerupert/cartsync/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captured struct {
	err  error
	tags map[string]string
}

type captureReporter struct {
	mu     sync.Mutex
	events []captured
}

func (r *captureReporter) Capture(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, captured{err: err, tags: tags})
}

func (r *captureReporter) captured() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.events...)
}

// env is the engine wired against an in-process devserver.
type env struct {
	dev        *devserver.Server
	url        string
	clock      *clock
	store      storage.Store
	auth       *auth.TokenSession
	sessions   *session.Manager
	guestCache *cache.TTLCache[domain.Cart]
	bus        *eventbus.Bus
	reporter   *captureReporter
	carts      service.CartRepository
	wishlist   service.WishlistRepository
	migration  *service.MigrationCoordinator

	requests    atomic.Int64
	guestReads  atomic.Int64
	productGets atomic.Int64

	eventsMu sync.Mutex
	events   []eventbus.Event
}

type envOption func(*envConfig)

type envConfig struct {
	dev      []devserver.Option
	wishlist service.WishlistConfig
}

func withDevserver(opts ...devserver.Option) envOption {
	return func(c *envConfig) { c.dev = append(c.dev, opts...) }
}

func withWishlistCheck() envOption {
	return func(c *envConfig) { c.wishlist.CheckEnabled = true }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		store:    storage.NewMemoryStore(),
		reporter: &captureReporter{},
	}

	e.dev = devserver.New(append([]devserver.Option{devserver.WithLogger(logger)}, cfg.dev...)...)
	handler := e.dev.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.requests.Add(1)
		if r.Method == http.MethodGet && r.URL.Path == "/guest/cart" {
			e.guestReads.Add(1)
		}
		if strings.HasPrefix(r.URL.Path, "/products/") {
			e.productGets.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	e.url = ts.URL

	e.guestCache = cache.New[domain.Cart](e.store, cache.ClassGuestCart, cache.GuestCartTTL, cache.WithClock(e.clock.Now), cache.WithLogger(logger))
	records := cache.New[domain.ProductSummary](e.store, cache.ClassProduct, cache.ProductTTL, cache.WithClock(e.clock.Now), cache.WithLogger(logger))
	productMaps := cache.New[map[string]domain.ProductSummary](e.store, cache.ClassProductMap, cache.ProductTTL, cache.WithClock(e.clock.Now), cache.WithLogger(logger))

	client := backend.New(ts.URL, backend.WithLogger(logger))
	guestClient := backend.New(ts.URL+"/guest", backend.WithLogger(logger))
	authCarts := backend.NewAuthCartClient(client)

	e.auth = auth.NewTokenSession(auth.WithLogger(logger))
	e.sessions = session.NewManager(e.store, logger)
	e.bus = eventbus.New(logger, nil)
	for _, topic := range eventbus.Topics {
		e.bus.Subscribe(topic, func(_ context.Context, ev eventbus.Event) {
			e.eventsMu.Lock()
			defer e.eventsMu.Unlock()
			e.events = append(e.events, ev)
		})
	}

	enricher := service.NewProductEnricher(backend.NewProductClient(client), records, productMaps, 4, nil, logger)
	e.carts = service.NewCartRepository(e.auth, e.sessions, authCarts, backend.NewGuestCartClient(guestClient),
		enricher, e.guestCache, e.bus, nil, e.reporter, logger)
	e.wishlist = service.NewWishlistRepository(e.auth, backend.NewFavoritesClient(client), enricher, e.bus,
		cfg.wishlist, nil, e.reporter, logger)
	e.migration = service.NewMigrationCoordinator(e.auth, e.sessions, authCarts, e.guestCache, e.bus, nil, e.reporter, logger)
	e.auth.OnLogin(e.migration.HandleLogin)

	return e
}

// login signs in userID with a devserver token, running login hooks.
func (e *env) login(t *testing.T, userID string) {
	t.Helper()
	token, err := e.dev.IssueToken(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	_, err = e.auth.Login(context.Background(), token)
	require.NoError(t, err)
}

func (e *env) countEvents(topic eventbus.Topic) int {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Topic == topic {
			n++
		}
	}
	return n
}

// failWhen injects 503s for requests matching method and path prefix.
func (e *env) failWhen(method, pathPrefix string) {
	e.dev.InjectFault(func(r *http.Request) bool {
		return r.Method == method && strings.HasPrefix(r.URL.Path, pathPrefix)
	})
}
