// Package auth holds the shopper's externally issued identity token.
//
// Token issuance and verification belong to the identity provider. The
// engine only needs to know whether a shopper is signed in, who they are,
// and which bearer token to forward to the cart service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidToken     = errors.New("invalid id token")
)

// Service is the identity collaborator the cart engine consults on every call.
type Service interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*User, error)
	IDToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// User is the signed-in shopper as described by the id token.
type User struct {
	ID        string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// Claims are the id token claims the engine reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Hook runs after a login or logout transition.
type Hook func(ctx context.Context, user *User)

// TokenSession is an in-process Service backed by a single id token.
type TokenSession struct {
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	token string
	user  *User

	hookMu   sync.Mutex
	onLogin  []Hook
	onLogout []Hook
}

// SessionOption configures a TokenSession.
type SessionOption func(*TokenSession)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(s *TokenSession) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *TokenSession) { s.logger = logger }
}

// NewTokenSession creates a signed-out session.
func NewTokenSession(opts ...SessionOption) *TokenSession {
	s := &TokenSession{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnLogin registers a hook run after every successful Login.
func (s *TokenSession) OnLogin(h Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onLogin = append(s.onLogin, h)
}

// OnLogout registers a hook run after Logout.
func (s *TokenSession) OnLogout(h Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onLogout = append(s.onLogout, h)
}

// Login stores token as the current identity and runs login hooks.
// The token signature is not verified here.
func (s *TokenSession) Login(ctx context.Context, token string) (*User, error) {
	user, err := ParseUser(token)
	if err != nil {
		return nil, err
	}
	if s.expired(user) {
		return nil, fmt.Errorf("%w: token expired at %s", ErrInvalidToken, user.ExpiresAt.Format(time.RFC3339))
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	s.logger.Info("shopper signed in", "user_id", user.ID)

	for _, h := range s.hooks(true) {
		h(ctx, user)
	}
	return user, nil
}

func (s *TokenSession) IsAuthenticated(ctx context.Context) bool {
	_, err := s.current()
	return err == nil
}

func (s *TokenSession) CurrentUser(ctx context.Context) (*User, error) {
	u, err := s.current()
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (s *TokenSession) IDToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.expired(s.user) {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// Logout forgets the token and runs logout hooks. Logging out while signed
// out is not an error.
func (s *TokenSession) Logout(ctx context.Context) error {
	s.mu.Lock()
	user := s.user
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if user == nil {
		return nil
	}

	s.logger.Info("shopper signed out", "user_id", user.ID)
	for _, h := range s.hooks(false) {
		h(ctx, user)
	}
	return nil
}

func (s *TokenSession) current() (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.expired(s.user) {
		return nil, ErrNotAuthenticated
	}
	return s.user, nil
}

func (s *TokenSession) expired(u *User) bool {
	return !u.ExpiresAt.IsZero() && !s.now().Before(u.ExpiresAt)
}

func (s *TokenSession) hooks(login bool) []Hook {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if login {
		return append([]Hook(nil), s.onLogin...)
	}
	return append([]Hook(nil), s.onLogout...)
}

// ParseUser reads the user claims from an id token without verifying it.
func ParseUser(token string) (*User, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	u := &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}
	if claims.ExpiresAt != nil {
		u.ExpiresAt = claims.ExpiresAt.Time
	}
	return u, nil
}
