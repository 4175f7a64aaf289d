package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Engine error codes.
// Callers switch on these to decide which message to show the shopper.
const (
	EINVALID      = "invalid"         // caller passed a value outside the contract
	ENOTFOUND     = "not_found"       // product or line not present
	EUNAUTHORIZED = "unauthorized"    // operation needs an authenticated identity
	EOUTOFSTOCK   = "out_of_stock"    // backend reports zero stock
	ECOMINGSOON   = "coming_soon"     // backend marks the product not yet available
	ENETWORK      = "network_failure" // transport error or open circuit
	EMUTATION     = "mutation_failed" // backend rejected a mutation for an unrecognised reason
	EMIGRATION    = "migration_failed"
	EPARTIAL      = "partial_failure" // compound operation stopped halfway
	EUNSUPPORTED  = "unsupported"     // operation not available for this identity
	EINTERNAL     = "internal"
)

// Error represents an engine error with a code and message.
// It implements the error interface and supports error wrapping.
type Error struct {
	// Code is a machine-readable error code (e.g., EOUTOFSTOCK).
	Code string

	// Message is a human-readable message safe to show to shoppers.
	Message string

	// Op is the operation where the error occurred (e.g., "cart.add_item").
	Op string

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code so that errors.Is(err, ErrOutOfStock)
// holds for any out-of-stock error regardless of op or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for non-nil errors that carry no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pe *PartialClearError
	if errors.As(err, &pe) {
		return EPARTIAL
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorMessage extracts a shopper-facing message from an error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pe *PartialClearError
	if errors.As(err, &pe) {
		return "Some items could not be removed from your cart. Please try again."
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case EINTERNAL:
			return "Something went wrong. Please try again later."
		case ENETWORK:
			return "We could not reach the store. Check your connection and try again."
		}
		return e.Message
	}

	return "Something went wrong. Please try again later."
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Errorf creates a new engine error with formatted message.
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps err with a code and operation. Returns nil if err is nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode returns true if err has the given error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// =============================================================================
// Validation errors
// =============================================================================

// ValidationError reports caller contract violations, detected before any
// network call is made.
type ValidationError struct {
	// Fields maps field names to error messages.
	Fields map[string]string

	// Op is the operation where validation failed.
	Op string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			if e.Op != "" {
				return fmt.Sprintf("%s: %s: %s", e.Op, field, msg)
			}
			return fmt.Sprintf("%s: %s", field, msg)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed for %d fields", e.Op, len(e.Fields))
	}
	return fmt.Sprintf("validation failed for %d fields", len(e.Fields))
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// =============================================================================
// Partial failures
// =============================================================================

// PartialClearError is returned when an iterate-and-remove operation removed
// some lines but not others. Removed and Failed hold product ids.
type PartialClearError struct {
	Op      string
	Removed []string
	Failed  []string
	Err     error
}

func (e *PartialClearError) Error() string {
	return fmt.Sprintf("%s: removed %d of %d items (failed: %s): %v",
		e.Op, len(e.Removed), len(e.Removed)+len(e.Failed), strings.Join(e.Failed, ","), e.Err)
}

func (e *PartialClearError) Unwrap() error {
	return e.Err
}

// IsPartialFailure returns true if err reports a partially applied operation.
func IsPartialFailure(err error) bool {
	var pe *PartialClearError
	return errors.As(err, &pe)
}

// =============================================================================
// Common errors
// =============================================================================

var (
	ErrAuthenticationRequired = &Error{Code: EUNAUTHORIZED, Message: "Please sign in to continue"}
	ErrOutOfStock             = &Error{Code: EOUTOFSTOCK, Message: "This product is out of stock"}
	ErrComingSoon             = &Error{Code: ECOMINGSOON, Message: "This product is coming soon"}
)

// NotFound creates a not found error for a resource.
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Unsupported creates an error for operations the current identity cannot perform.
func Unsupported(op, message string) error {
	return &Error{
		Code:    EUNSUPPORTED,
		Op:      op,
		Message: message,
	}
}

// Network wraps a transport-level failure.
func Network(err error, op string) error {
	return &Error{
		Code:    ENETWORK,
		Op:      op,
		Message: "store unreachable",
		Err:     err,
	}
}

// MutationFailed wraps a backend rejection that carries no recognised reason.
func MutationFailed(err error, op string) error {
	return &Error{
		Code:    EMUTATION,
		Op:      op,
		Message: "Could not update your cart",
		Err:     err,
	}
}

// Internal creates an internal error (wraps underlying error).
func Internal(err error, op, message string) error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
