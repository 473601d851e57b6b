package errortracking

import (
	"context"
	"sync"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Context keys the engines attach to captured errors. Providers that support
// indexed tags promote these out of the free-form extra map.
const (
	FieldRequestType = "request_type"
	FieldOperation   = "operation"
	FieldTable       = "table"
	FieldSQL         = "sql"
)

var tagFields = []string{FieldRequestType, FieldOperation, FieldTable}

// Provider defines the interface for error tracking providers
type Provider interface {
	// CaptureError captures an error with the given severity and additional context
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{})

	// CaptureMessage captures a message with the given severity and additional context
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{})

	// CapturePanic captures a panic with stack trace
	CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{})

	// Flush waits up to timeout seconds for all events to be sent
	Flush(timeout int) bool

	// Close closes the provider and releases resources
	Close() error
}

// NoOpProvider is used when error tracking is disabled
type NoOpProvider struct{}

// NewNoOpProvider creates a new NoOp provider
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (n *NoOpProvider) CaptureError(context.Context, error, Severity, map[string]interface{}) {}

func (n *NoOpProvider) CaptureMessage(context.Context, string, Severity, map[string]interface{}) {}

func (n *NoOpProvider) CapturePanic(context.Context, interface{}, []byte, map[string]interface{}) {}

func (n *NoOpProvider) Flush(int) bool { return true }

func (n *NoOpProvider) Close() error { return nil }

// Captured is one entry recorded by a MemoryProvider.
type Captured struct {
	Severity Severity
	Message  string
	Err      error
	Extra    map[string]interface{}
}

// MemoryProvider keeps captured events in memory. Useful in tests and for
// local diagnostics.
type MemoryProvider struct {
	mu     sync.Mutex
	events []Captured
}

// NewMemoryProvider creates an empty in-memory provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

func (m *MemoryProvider) record(c Captured) {
	m.mu.Lock()
	m.events = append(m.events, c)
	m.mu.Unlock()
}

func (m *MemoryProvider) CaptureError(_ context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}
	m.record(Captured{Severity: severity, Message: err.Error(), Err: err, Extra: extra})
}

func (m *MemoryProvider) CaptureMessage(_ context.Context, message string, severity Severity, extra map[string]interface{}) {
	m.record(Captured{Severity: severity, Message: message, Extra: extra})
}

func (m *MemoryProvider) CapturePanic(_ context.Context, recovered interface{}, _ []byte, extra map[string]interface{}) {
	m.record(Captured{Severity: SeverityError, Message: "panic", Extra: extra})
}

func (m *MemoryProvider) Flush(int) bool { return true }

func (m *MemoryProvider) Close() error { return nil }

// Events returns a copy of everything captured so far
func (m *MemoryProvider) Events() []Captured {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Captured(nil), m.events...)
}
