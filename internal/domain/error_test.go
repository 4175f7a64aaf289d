package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: EINVALID, Message: "invalid input"},
			expected: "invalid input",
		},
		{
			name:     "with operation",
			err:      &Error{Code: EOUTOFSTOCK, Op: "cart.add_item", Message: "out of stock"},
			expected: "cart.add_item: out of stock",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    ENETWORK,
				Op:      "cart.get",
				Message: "store unreachable",
				Err:     errors.New("connection refused"),
			},
			expected: "cart.get: store unreachable: connection refused",
		},
		{
			name: "wrapped error without op",
			err: &Error{
				Code:    EMUTATION,
				Message: "Could not update your cart",
				Err:     errors.New("500"),
			},
			expected: "Could not update your cart: 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("dial tcp: timeout")
	err := Network(underlying, "cart.get")

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the wrapped transport error")
	}
}

func TestError_IsMatchesSentinelByCode(t *testing.T) {
	err := &Error{Code: EOUTOFSTOCK, Op: "cart.add_item", Message: ErrOutOfStock.Message, Err: errors.New("api 409")}

	if !errors.Is(err, ErrOutOfStock) {
		t.Error("expected out-of-stock error to match ErrOutOfStock")
	}
	if errors.Is(err, ErrComingSoon) {
		t.Error("out-of-stock error must not match ErrComingSoon")
	}

	wrapped := fmt.Errorf("adding: %w", err)
	if !errors.Is(wrapped, ErrOutOfStock) {
		t.Error("expected wrapped error to match ErrOutOfStock")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"engine error", ErrComingSoon, ECOMINGSOON},
		{"wrapped engine error", fmt.Errorf("ctx: %w", ErrAuthenticationRequired), EUNAUTHORIZED},
		{"validation error", CheckQuantity("cart.update", 0), EINVALID},
		{"partial clear", &PartialClearError{Op: "cart.clear", Removed: []string{"p1"}, Failed: []string{"p2"}, Err: errors.New("x")}, EPARTIAL},
		{"plain error", errors.New("boom"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.expected {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"out of stock shows message", ErrOutOfStock, "This product is out of stock"},
		{"internal hides details", Internal(errors.New("secret"), "cart.get", "decode failed"), "Something went wrong. Please try again later."},
		{"network is generic", Network(errors.New("refused"), "cart.get"), "We could not reach the store. Check your connection and try again."},
		{"partial clear", &PartialClearError{Op: "cart.clear"}, "Some items could not be removed from your cart. Please try again."},
		{"unknown error hides details", errors.New("boom"), "Something went wrong. Please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.expected {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorOp(t *testing.T) {
	if got := ErrorOp(MutationFailed(errors.New("x"), "cart.remove_item")); got != "cart.remove_item" {
		t.Errorf("ErrorOp() = %q", got)
	}
	if got := ErrorOp(errors.New("x")); got != "" {
		t.Errorf("ErrorOp() on plain error = %q, want empty", got)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, EINTERNAL, "op", "msg") != nil {
		t.Error("WrapError(nil) should return nil")
	}

	base := errors.New("base")
	err := WrapError(base, EMIGRATION, "migration.migrate", "merge failed")
	if !IsCode(err, EMIGRATION) {
		t.Errorf("expected code %q, got %q", EMIGRATION, ErrorCode(err))
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to be reachable")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("cart.update_item_quantity", "quantity", "must be between 1 and 99")

	if !IsValidationError(err) {
		t.Fatal("expected ValidationError")
	}
	expected := "cart.update_item_quantity: quantity: must be between 1 and 99"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	multi := &ValidationError{Fields: map[string]string{"a": "x", "b": "y"}}
	if multi.Error() != "validation failed for 2 fields" {
		t.Errorf("unexpected multi-field message %q", multi.Error())
	}
}

func TestPartialClearError(t *testing.T) {
	cause := errors.New("api 500")
	err := &PartialClearError{Op: "cart.clear", Removed: []string{"p1", "p2"}, Failed: []string{"p3"}, Err: cause}

	if !IsPartialFailure(err) {
		t.Error("expected partial failure")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be unwrappable")
	}
	if err.Error() != "cart.clear: removed 2 of 3 items (failed: p3): api 500" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"NotFound", NotFound("cart.remove", "line", "p1"), ENOTFOUND},
		{"Unsupported", Unsupported("cart.apply_coupon", "guest carts do not support coupons"), EUNSUPPORTED},
		{"Network", Network(errors.New("x"), "cart.get"), ENETWORK},
		{"MutationFailed", MutationFailed(errors.New("x"), "cart.add_item"), EMUTATION},
		{"Internal", Internal(errors.New("x"), "cart.get", "decode"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsCode(tt.err, tt.code) {
				t.Errorf("expected code %q, got %q", tt.code, ErrorCode(tt.err))
			}
		})
	}
}
