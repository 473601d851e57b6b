package crud

import (
	"fmt"

	"github.com/bitechdev/autoquery/pkg/autoquery"
)

// State is the progress of an Execution.
type State int

const (
	StateCreated State = iota
	StateValuesResolved
	StateExecuted
	StateResponseShaped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValuesResolved:
		return "values_resolved"
	case StateExecuted:
		return "executed"
	case StateResponseShaped:
		return "response_shaped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Execution carries one mutation from its request to its response. States
// only move forward, one step at a time.
type Execution struct {
	Operation Operation
	Metadata  *autoquery.RequestMetadata
	// Request is a copy of the caller's request with Populate and Defaults applied.
	Request any

	// Columns lists the dirty columns in the order they were resolved.
	Columns []string
	// Values holds the dirty values keyed by column.
	Values map[string]interface{}
	// Filters holds the equality filters of a physical delete, keyed by column.
	Filters map[string]interface{}
	// filterColumns keeps Filters in resolution order.
	filterColumns []string

	ID any
	// RowVersion is the version the request was read at, zero when not sent.
	RowVersion int64
	// SoftDelete is set when a delete is carried out as a patch.
	SoftDelete bool

	RowsAffected int64
	Event        *Event

	state State
}

func newExecution(op Operation, meta *autoquery.RequestMetadata) *Execution {
	return &Execution{
		Operation: op,
		Metadata:  meta,
		Values:    make(map[string]interface{}),
		Filters:   make(map[string]interface{}),
	}
}

// State returns the current state.
func (x *Execution) State() State { return x.state }

func (x *Execution) advance(to State) error {
	if to != x.state+1 {
		return fmt.Errorf("crud: invalid state transition from %s to %s", x.state, to)
	}
	x.state = to
	return nil
}

func (x *Execution) set(column string, value interface{}) {
	if _, ok := x.Values[column]; !ok {
		x.Columns = append(x.Columns, column)
	}
	x.Values[column] = value
}

func (x *Execution) filter(column string, value interface{}) {
	if _, ok := x.Filters[column]; !ok {
		x.filterColumns = append(x.filterColumns, column)
	}
	x.Filters[column] = value
}

func (x *Execution) args() []interface{} {
	args := make([]interface{}, 0, len(x.Columns))
	for _, c := range x.Columns {
		args = append(args, x.Values[c])
	}
	return args
}
