package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies generation failures for retry decisions and for
// the structured error attached to failed jobs.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindAPIError          ErrorKind = "api_error"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindGenerationTimeout ErrorKind = "generation_timeout"
	KindStorageFailure    ErrorKind = "storage_failure"
	KindConfiguration     ErrorKind = "configuration_error"
)

// Error is a typed generation failure with optional HTTP status context.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

// Error formats the failure for logs and job records.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidInput builds a non-retryable input validation failure.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// APIError builds a backend-reported failure with an optional status code.
func APIError(statusCode int, format string, args ...any) *Error {
	return &Error{Kind: KindAPIError, StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// QuotaExceeded builds a rate/quota limit failure.
func QuotaExceeded(format string, args ...any) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

// Timeout builds a wall-clock budget failure for a long-running operation.
func Timeout(format string, args ...any) *Error {
	return &Error{Kind: KindGenerationTimeout, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps a storage collaborator failure.
func StorageFailure(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorageFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// ConfigError builds a configuration failure surfaced before any job work.
func ConfigError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, defaulting to api_error for untyped errors.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindAPIError
}
