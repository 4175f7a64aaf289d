package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Structured reasons the cart service reports in the error body's code field.
const (
	ReasonOutOfStock = "out_of_stock"
	ReasonComingSoon = "coming_soon"
)

// APIError is a non-2xx response from the cart service.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cart service returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("cart service returned %d: %s", e.Status, e.Message)
}

// Reason returns the structured error code when the service sent one, and
// otherwise a reason derived from the message text.
func (e *APIError) Reason() string {
	if e.Code != "" {
		return e.Code
	}
	return legacyReason(e.Message)
}

// legacyReason recognises stock errors from services that predate the
// structured code field. Matching free text is fragile; keep it here only.
func legacyReason(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "out of stock"), strings.Contains(m, "insufficient stock"):
		return ReasonOutOfStock
	case strings.Contains(m, "coming soon"):
		return ReasonComingSoon
	}
	return ""
}

// ErrorBody is the JSON error envelope of the cart service.
type ErrorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Error != "" || eb.Code != "") {
		e.Code = eb.Code
		e.Message = eb.Error
		e.Details = eb.Details
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// TransportError means the request never produced a response: a network
// failure, an open circuit, or a cancelled rate-limiter wait.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body did not match the expected shape.
type DecodeError struct {
	Method string
	Path   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: failed to parse response: %v", e.Method, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
