package autoquery

import (
	"strings"

	"github.com/bitechdev/autoquery/pkg/common"
)

// SqlExpression is a compiled SELECT. Hooks may add to it before it runs.
type SqlExpression struct {
	Dialect  common.Dialect
	Metadata *RequestMetadata
	// Request is the request after its Populate rules ran.
	Request any
	// Table is the quoted primary table.
	Table    string
	Distinct bool
	Select   []string
	From     string
	Joins    []string
	OrderBy  []string
	Offset   int
	// Limit is negative when no limit applies.
	Limit int

	ensure     []Condition
	conditions []Condition
	// matchNone forces the caller segment to match nothing.
	matchNone bool
}

func newSqlExpression(d common.Dialect, meta *RequestMetadata) *SqlExpression {
	table := d.QuoteTable(meta.Model.Schema, meta.Model.Table)
	return &SqlExpression{
		Dialect:  d,
		Metadata: meta,
		Table:    table,
		From:     table,
		Limit:    -1,
	}
}

// Clone returns a copy that can be changed without affecting q.
func (q *SqlExpression) Clone() *SqlExpression {
	c := *q
	c.Select = append([]string(nil), q.Select...)
	c.Joins = append([]string(nil), q.Joins...)
	c.OrderBy = append([]string(nil), q.OrderBy...)
	c.ensure = append([]Condition(nil), q.ensure...)
	c.conditions = append([]Condition(nil), q.conditions...)
	return &c
}

// Ensure adds a mandatory condition.
func (q *SqlExpression) Ensure(sql string, args ...interface{}) *SqlExpression {
	q.ensure = append(q.ensure, Condition{Term: TermEnsure, SQL: sql, Args: args})
	return q
}

// Where adds a caller condition joined by term.
func (q *SqlExpression) Where(term Term, sql string, args ...interface{}) *SqlExpression {
	return q.AddCondition(&Condition{Term: term, SQL: sql, Args: args})
}

// AddCondition appends c to the segment its term selects. A nil c is ignored.
func (q *SqlExpression) AddCondition(c *Condition) *SqlExpression {
	if c == nil {
		return q
	}
	if c.Term == TermEnsure {
		q.ensure = append(q.ensure, *c)
	} else {
		q.conditions = append(q.conditions, *c)
	}
	return q
}

// Column quotes a column of the primary table.
func (q *SqlExpression) Column(column string) string {
	return q.Dialect.QuoteColumn(q.Table, column)
}

// HasOrderBy reports whether an ordering was applied.
func (q *SqlExpression) HasOrderBy() bool { return len(q.OrderBy) > 0 }

// WhereClause renders the conditions without the WHERE keyword: the mandatory
// conditions ANDed, followed by the caller's conditions folded left to right
// in parentheses.
func (q *SqlExpression) WhereClause() (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, c := range q.ensure {
		parts = append(parts, c.SQL)
		args = append(args, c.Args...)
	}

	switch {
	case q.matchNone:
		parts = append(parts, "1=0")
	case len(q.conditions) > 0:
		var sb strings.Builder
		var last Term
		for i, c := range q.conditions {
			term := c.Term
			if term == TermDefault {
				term = q.defaultTerm()
			}
			if i > 0 {
				if i > 1 && term != last {
					expr := sb.String()
					sb.Reset()
					sb.WriteString("(" + expr + ")")
				}
				sb.WriteString(" " + term.String() + " ")
			}
			sb.WriteString(c.SQL)
			last = term
			args = append(args, c.Args...)
		}
		if len(parts) > 0 {
			parts = append(parts, "("+sb.String()+")")
		} else {
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, " AND "), args
}

func (q *SqlExpression) defaultTerm() Term {
	if q.Metadata != nil && q.Metadata.DefaultTerm == TermOr {
		return TermOr
	}
	return TermAnd
}

// ToSelect renders the complete statement.
func (q *SqlExpression) ToSelect() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(q.Select) == 0 {
		sb.WriteString(q.Table + ".*")
	} else {
		sb.WriteString(strings.Join(q.Select, ", "))
	}
	sb.WriteString(" FROM " + q.From)
	for _, j := range q.Joins {
		sb.WriteString(" " + j)
	}

	where, args := q.WhereClause()
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(q.OrderBy, ", "))
	}
	sb.WriteString(q.Dialect.Paging(q.Offset, q.Limit, q.HasOrderBy()))
	return sb.String(), args
}
