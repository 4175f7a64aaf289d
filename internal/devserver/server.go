// Package devserver is an in-memory reference implementation of the remote
// cart, favorites and catalog HTTP contracts. It backs local development,
// the CLI demo and the engine's integration tests.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/domain"
)

// DefaultSigningKey signs and verifies devserver tokens when no key is set.
const DefaultSigningKey = "cartsync-dev-signing-key"

const (
	userKey    = "user_id"
	sessionKey = "session_id"
)

// Server is the devserver HTTP application.
type Server struct {
	echo     *echo.Echo
	store    *Store
	metrics  *httpMetrics
	validate *validator.Validate
	logger   *slog.Logger
	key      []byte
	now      func() time.Time

	catalog   []backend.Product
	namespace string
	legacy    bool
	fault     atomic.Pointer[FaultFunc]
}

// FaultFunc decides whether a request should fail with 503 before reaching
// its handler.
type FaultFunc func(r *http.Request) bool

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCatalog replaces the default product catalog.
func WithCatalog(products []backend.Product) Option {
	return func(s *Server) { s.catalog = products }
}

func WithSigningKey(key []byte) Option {
	return func(s *Server) { s.key = key }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMetricsNamespace sets the prefix of the HTTP collectors.
func WithMetricsNamespace(ns string) Option {
	return func(s *Server) { s.namespace = ns }
}

// WithLegacyErrors makes error bodies carry only a free-text message, the
// way older deployments of the cart service report stock problems.
func WithLegacyErrors() Option {
	return func(s *Server) { s.legacy = true }
}

// New builds the devserver with its routes registered.
func New(opts ...Option) *Server {
	s := &Server{
		logger:   slog.Default(),
		key:      []byte(DefaultSigningKey),
		now:      time.Now,
		catalog:  DefaultCatalog(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.store = newStore(s.catalog, s.now)
	s.metrics = newHTTPMetrics(s.namespace, prometheus.NewRegistry())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = s
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.middleware)
	e.Use(s.faults)
	s.echo = e

	s.routes()
	return s
}

// Handler exposes the application for http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Store exposes the state for seeding and inspection.
func (s *Server) Store() *Store { return s.store }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// InjectFault makes matching requests fail with 503. A nil func clears it.
func (s *Server) InjectFault(fn FaultFunc) {
	if fn == nil {
		s.fault.Store(nil)
		return
	}
	s.fault.Store(&fn)
}

// IssueToken signs an id token for userID that the devserver accepts.
func (s *Server) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	return SignToken(s.key, userID, email, s.now().Add(ttl))
}

// SignToken signs an HS256 id token with the given subject and expiry.
func SignToken(key []byte, userID, email string, expires time.Time) (string, error) {
	claims := auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "cartsync-devserver",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Validate implements echo.Validator.
func (s *Server) Validate(i any) error {
	return s.validate.Struct(i)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Debug("request",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.Int("status", c.Response().Status),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) faults(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if fn := s.fault.Load(); fn != nil && (*fn)(c.Request()) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "injected fault")
		}
		return next(c)
	}
}

// requireUser verifies the bearer token and stores its subject.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return &domain.Error{Code: domain.EUNAUTHORIZED, Message: "missing bearer token"}
		}

		claims := &auth.Claims{}
		_, err := jwt.ParseWithClaims(raw, claims,
			func(*jwt.Token) (any, error) { return s.key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.now),
		)
		if err != nil || claims.Subject == "" {
			return &domain.Error{Code: domain.EUNAUTHORIZED, Message: "invalid bearer token", Err: err}
		}

		c.Set(userKey, claims.Subject)
		return next(c)
	}
}

// requireSession reads the guest session header.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(backend.SessionHeader))
		if id == "" {
			return domain.NewValidationError("", backend.SessionHeader, "header is required")
		}
		c.Set(sessionKey, id)
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

func sessionID(c echo.Context) string {
	id, _ := c.Get(sessionKey).(string)
	return id
}

// errorStatus maps an error code to its HTTP status.
func errorStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.EOUTOFSTOCK, domain.ECOMINGSOON:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorResponse(err error) (int, backend.ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, backend.ErrorBody{Error: fmt.Sprint(he.Message)}
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		details := make(map[string]any, len(ve))
		for _, fe := range ve {
			details[fe.Field()] = fe.Tag() + " " + fe.Param()
		}
		return http.StatusBadRequest, backend.ErrorBody{Error: "invalid request", Code: domain.EINVALID, Details: details}
	}

	if domain.IsValidationError(err) {
		return http.StatusBadRequest, backend.ErrorBody{Error: err.Error(), Code: domain.EINVALID}
	}

	var de *domain.Error
	if errors.As(err, &de) {
		body := backend.ErrorBody{Error: de.Message, Code: de.Code}
		if s.legacy {
			body.Code = ""
		}
		return errorStatus(de.Code), body
	}

	return http.StatusInternalServerError, backend.ErrorBody{Error: http.StatusText(http.StatusInternalServerError)}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("error", err.Error()),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("write error response", slog.String("error", err.Error()))
	}
}
