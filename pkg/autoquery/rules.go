package autoquery

// JoinType selects how the models of a join chain are joined.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
)

func (j JoinType) keyword() string {
	if j == JoinLeft {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// AutoFilter is a mandatory condition applied to every query and scoped
// mutation of a request type. Without a Template a nil value renders IS NULL
// and anything else an equality.
type AutoFilter struct {
	Field       string // model field or column
	Template    string
	ValueFormat string
	Value       any
	Eval        string // evaluator directive, takes precedence over Value
}

// ValueRule assigns a request field from a literal or an evaluator directive.
type ValueRule struct {
	Field string // request field
	Value any
	Eval  string
}

// Rules are the declarative settings of a request type, evaluated once when
// the request is registered.
type Rules struct {
	AutoFilters []AutoFilter
	// Populate always overwrites the request field before it is read.
	Populate []ValueRule
	// Defaults fill a request field only when it holds its zero value.
	Defaults []ValueRule
	// Map renames request fields onto model fields.
	Map map[string]string
	// DenyReset lists fields a patch may not reset.
	DenyReset []string
	// DefaultTerm joins the caller's conditions, AND unless set to TermOr.
	DefaultTerm Term
	// Joins chains further models after the primary one; each adjacent pair
	// is joined on a <Name>Id foreign key.
	Joins    []any
	JoinType JoinType
	// Connection names the connection to open through Options.Connections.
	Connection string
	// ReturnResult re-reads the affected row after a mutation.
	ReturnResult bool
}

// ModelProvider lets a request type declare its model without registration.
type ModelProvider interface {
	AutoQueryModel() any
}

// RulesProvider lets a request type declare its rules without registration.
type RulesProvider interface {
	AutoQueryRules() Rules
}
