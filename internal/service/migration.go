package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
	"github.com/dukerupert/cartsync/internal/telemetry"
)

// Migration outcomes reported to metrics.
const (
	migrationMerged  = "merged"
	migrationSkipped = "skipped"
	migrationFailed  = "failed"
)

// MigrationCoordinator moves the guest cart into the shopper's account on
// login. How lines are merged is decided by the cart service.
type MigrationCoordinator struct {
	auth       auth.Service
	sessions   SessionProvider
	authCarts  AuthCartAPI
	guestCache *cache.TTLCache[domain.Cart]
	bus        *eventbus.Bus
	metrics    *telemetry.CartMetrics
	reporter   telemetry.Reporter
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewMigrationCoordinator creates a MigrationCoordinator. metrics and
// reporter may be nil.
func NewMigrationCoordinator(
	authService auth.Service,
	sessions SessionProvider,
	authCarts AuthCartAPI,
	guestCache *cache.TTLCache[domain.Cart],
	bus *eventbus.Bus,
	metrics *telemetry.CartMetrics,
	reporter telemetry.Reporter,
	logger *slog.Logger,
) *MigrationCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = telemetry.SentryReporter{}
	}
	return &MigrationCoordinator{
		auth:       authService,
		sessions:   sessions,
		authCarts:  authCarts,
		guestCache: guestCache,
		bus:        bus,
		metrics:    metrics,
		reporter:   reporter,
		logger:     logger.With("service", "migration"),
		now:        time.Now,
	}
}

// Migrate asks the cart service to merge the current guest session into the
// account behind token, then forgets the guest session and its cached cart.
//
// With no guest session there is nothing to merge: Migrate returns a nil
// cart and a nil error. Because success clears the session, a second call
// for the same login is a no-op.
func (m *MigrationCoordinator) Migrate(ctx context.Context, token string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.sessions.Current(ctx)
	if !ok {
		m.metrics.RecordMigration(migrationSkipped)
		return nil, nil
	}
	if token == "" {
		m.metrics.RecordMigration(migrationFailed)
		return nil, authRequired(opMigrate, auth.ErrNotAuthenticated)
	}

	merged, err := m.authCarts.Migrate(ctx, token, sessionID)
	if err != nil {
		m.metrics.RecordMigration(migrationFailed)
		return nil, domain.WrapError(err, domain.EMIGRATION, opMigrate, "Could not move your guest cart to your account")
	}

	m.guestCache.Invalidate(ctx, cache.GuestCartKey(sessionID))
	m.sessions.Clear(ctx)
	m.metrics.RecordMigration(migrationMerged)

	cart := normalizeAuthCart(merged, m.now())
	m.logger.Info("guest cart migrated",
		"session_id", sessionID,
		"user_id", cart.Identity.UserID,
		"lines", len(cart.Lines),
	)

	m.bus.Publish(ctx, eventbus.Event{Topic: eventbus.CartUpdated})
	return cart, nil
}

// HandleLogin runs Migrate for a login transition. A failed migration is
// logged and reported but never returned: it must not block the login.
func (m *MigrationCoordinator) HandleLogin(ctx context.Context, user *auth.User) {
	token, err := m.auth.IDToken(ctx)
	if err != nil {
		m.logger.Warn("skipping guest cart migration, no id token", "error", err)
		return
	}

	if _, err := m.Migrate(ctx, token); err != nil {
		tags := map[string]string{"op": opMigrate}
		if user != nil {
			tags["user_id"] = user.ID
		}
		m.logger.Warn("guest cart migration failed", "error", err)
		m.reporter.Capture(err, tags)
	}
}
