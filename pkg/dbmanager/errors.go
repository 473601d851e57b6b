package dbmanager

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrNoDefaultConnection = errors.New("no default connection configured")
	ErrAlreadyRegistered   = errors.New("connection already registered")
)

// ConnectionError reports a failed operation on a named connection. Errors
// from a lease carry the name of the pool it was taken from.
type ConnectionError struct {
	Name      string
	Operation string
	Err       error
}

func NewConnectionError(name, operation string, err error) *ConnectionError {
	return &ConnectionError{Name: name, Operation: operation, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q: %s: %v", e.Name, e.Operation, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConfigurationError names the connection setting that failed validation.
type ConfigurationError struct {
	Field string
	Err   error
}

func NewConfigurationError(field string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "dbmanager config: " + e.Err.Error()
	}
	return fmt.Sprintf("dbmanager config %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
