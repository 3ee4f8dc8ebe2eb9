package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrStorage    = errors.New("storage failure")
	ErrRemote     = errors.New("remote catalog error")
)

// AppError carries a human-readable message on top of one of the sentinels.
type AppError struct {
	Err     error  // sentinel
	Message string // human-readable message
	Field   string // optional field causing the error
	Cause   error  // optional underlying error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Storage wraps a local persistence failure (read, write or decode).
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: op,
		Cause:   cause,
	}
}

// Remote wraps a catalog failure. StatusCode is 0 for transport errors.
func Remote(statusCode int, cause error) *AppError {
	msg := "catalog request failed"
	if statusCode != 0 {
		msg = fmt.Sprintf("catalog returned status %d", statusCode)
	}
	return &AppError{
		Err:     ErrRemote,
		Message: msg,
		Cause:   cause,
	}
}
