// Package crud executes Create, Update, Patch, Delete and Save requests
// registered with an autoquery.Engine, recording an audit event in the same
// transaction when an event sink is configured.
package crud

import "fmt"

// Operation names a mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpPatch  Operation = "patch"
	OpDelete Operation = "delete"
	OpSave   Operation = "save"
)

// ParseOperation reads an operation name as recorded on an Event.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpCreate, OpUpdate, OpPatch, OpDelete, OpSave:
		return op, nil
	}
	return "", fmt.Errorf("unknown crud operation %q", s)
}

// Base can be embedded in Patch requests to reset fields to their empty value.
type Base struct {
	Reset []string `json:"reset,omitempty"`
}

// Response is the shaped outcome of a mutation.
type Response[T any] struct {
	// ID is the primary key of the affected row, when known.
	ID    any   `json:"id,omitempty"`
	Count int64 `json:"count"`
	// RowVersion is the row version after the mutation, when known.
	RowVersion int64 `json:"rowVersion,omitempty"`
	// Result is the re-read row when the request's rules ask for it.
	Result *T `json:"result,omitempty"`
}
