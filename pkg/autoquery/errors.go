package autoquery

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ValidationError and ConcurrencyError.
var (
	ErrPrimaryKeyRequired    = errors.New("primary key required")
	ErrIllegalSQLFragment    = errors.New("illegal sql fragment")
	ErrArgumentArity         = errors.New("argument arity not satisfied")
	ErrUnsafeDelete          = errors.New("delete requires at least one filter")
	ErrResetDenied           = errors.New("field cannot be reset")
	ErrInvalidValue          = errors.New("invalid value")
	ErrOptimisticConcurrency = errors.New("optimistic concurrency check failed")
)

// ConfigurationError reports a mistake in a request or model registration.
// It is raised when metadata is resolved, before any SQL runs.
type ConfigurationError struct {
	RequestType string
	Message     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("autoquery configuration error in %s: %s", e.RequestType, e.Message)
}

func configErrorf(requestType, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{RequestType: requestType, Message: fmt.Sprintf(format, args...)}
}

// ValidationError is a caller-correctable problem with a request.
type ValidationError struct {
	Field string
	Err   error
	Msg   string
}

func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Msg != "" {
		msg = msg + ": " + e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, msg)
	}
	return "validation failed: " + msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps a sentinel with the offending field and detail.
func NewValidationError(field string, err error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// ConcurrencyError is raised when a scoped update or delete does not affect exactly one row.
type ConcurrencyError struct {
	Table        string
	ID           interface{}
	RowsAffected int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: %s row %v affected %d rows, expected 1",
		ErrOptimisticConcurrency, e.Table, e.ID, e.RowsAffected)
}

func (e *ConcurrencyError) Unwrap() error { return ErrOptimisticConcurrency }

// ExecutionError wraps a driver failure with the statement that caused it.
type ExecutionError struct {
	Op  string
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v; sql: %s", e.Op, e.Err, e.SQL)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsClientError reports whether err is something the caller can fix:
// a validation or concurrency failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ce *ConcurrencyError
	return errors.As(err, &ve) || errors.As(err, &ce)
}

// IsConfigurationError reports whether err stems from a bad registration.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
