// Package backend talks to the remote cart service: the authenticated cart,
// the guest cart, favorites and the product catalog.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// SessionHeader carries the guest session id.
const SessionHeader = "X-Session-ID"

const defaultTimeout = 10 * time.Second

// Client is a JSON HTTP client for one base URL of the cart service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *slog.Logger
}

type response struct {
	status int
	body   []byte
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests at rps with the given burst.
// A non-positive rps leaves the client unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker opens the circuit after maxFailures consecutive transport or
// 5xx failures and keeps it open for openTimeout.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		if maxFailures == 0 {
			c.breaker = nil
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:    c.baseURL,
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("cart service circuit changed state",
					"base_url", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for baseURL. Requests go through an
// OpenTelemetry-instrumented transport.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base the client resolves paths against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption decorates a single outbound request.
type RequestOption func(*http.Request)

// Bearer authorizes the request with an id token.
func Bearer(token string) RequestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

// Session scopes the request to a guest session.
func Session(sessionID string) RequestOption {
	return func(r *http.Request) { r.Header.Set(SessionHeader, sessionID) }
}

// Do sends a request with an optional JSON body and decodes a 2xx JSON
// response into out when out is non-nil. Non-2xx responses return *APIError,
// transport failures *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Method: method, Path: path, Err: err}
		}
	}

	start := time.Now()
	send := func() (*response, error) {
		return c.send(ctx, method, path, payload, opts)
	}

	var (
		resp *response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(send)
	} else {
		resp, err = send()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &TransportError{Method: method, Path: path, Err: err}
	}
	if err != nil {
		c.logger.Debug("cart service request failed",
			"method", method,
			"path", path,
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}

	c.logger.Debug("cart service request",
		"method", method,
		"path", path,
		"status", resp.status,
		"duration", time.Since(start),
	)

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &DecodeError{Method: method, Path: path, Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, opts []RequestOption) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// countsAsSuccess keeps client errors from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < http.StatusInternalServerError
	}
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
