package storage

import (
	"errors"
	"fmt"
)

// ============================================================================
// STORAGE ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.

const (
	codeInternal = "internal"
	codeInvalid  = "invalid"
	codeNotFound = "not_found"
)

// StorageError represents a storage-specific error with a code and message.
type StorageError struct {
	Code    string
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the error code.
func (e *StorageError) ErrorCode() string {
	return e.Code
}

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = &StorageError{Code: codeNotFound, Message: "key not found"}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrUnknownProvider creates an error for unknown storage providers.
func ErrUnknownProvider(provider string) error {
	return &StorageError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("unknown storage provider: %s", provider),
	}
}

// errUnavailable wraps a backend failure (disk, network) as an internal error.
func errUnavailable(op string, err error) error {
	return &StorageError{
		Code:    codeInternal,
		Message: fmt.Sprintf("storage %s failed", op),
		Err:     err,
	}
}
