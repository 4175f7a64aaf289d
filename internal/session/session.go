// Package session issues and persists the anonymous guest session id.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/cartsync/internal/storage"
)

// StorageKey is where the guest session id is persisted.
const StorageKey = "guest_session_id"

const idPrefix = "guest_"

// Manager hands out the single active guest session id for a profile.
//
// When the backing store fails, the manager falls back to an id held in
// memory for the life of the process instead of returning an error.
type Manager struct {
	store  storage.Store
	logger *slog.Logger

	mu       sync.Mutex
	fallback string
	degraded bool
}

// NewManager creates a Manager persisting through store.
func NewManager(store storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// GetOrCreateSessionID returns the persisted guest id, creating and
// persisting a new one on first use.
func (m *Manager) GetOrCreateSessionID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.read(ctx); ok {
		return id
	}

	if m.fallback != "" {
		return m.fallback
	}

	id := NewID()
	if err := m.store.Put(ctx, StorageKey, []byte(id)); err != nil {
		m.degrade(err)
		m.fallback = id
		return id
	}

	m.logger.Debug("guest session created", "session_id", id)
	return id
}

// Current returns the active guest id without creating one.
func (m *Manager) Current(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.read(ctx); ok {
		return id, true
	}
	if m.fallback != "" {
		return m.fallback, true
	}
	return "", false
}

// Clear forgets the guest session. The next GetOrCreateSessionID issues a new id.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = ""
	if err := m.store.Delete(ctx, StorageKey); err != nil {
		m.degrade(err)
	}
}

func (m *Manager) read(ctx context.Context) (string, bool) {
	raw, err := m.store.Get(ctx, StorageKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			m.degrade(err)
		}
		return "", false
	}
	id := strings.TrimSpace(string(raw))
	return id, id != ""
}

// degrade logs the first storage failure only; callers hold m.mu.
func (m *Manager) degrade(err error) {
	if m.degraded {
		return
	}
	m.degraded = true
	m.logger.Warn("guest session storage unavailable, using in-memory session", "error", err)
}

// NewID returns a fresh opaque guest session id.
func NewID() string {
	return idPrefix + uuid.NewString()
}
