package autoquery

import (
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// Condition is one parameterized predicate and the term joining it to the
// conditions before it.
type Condition struct {
	Term Term
	SQL  string
	Args []interface{}
}

// BuildCondition renders a single predicate for quotedColumn.
//
// Without a template a nil value yields IS NULL, an empty collection yields no
// condition (nil, nil), a non-empty collection yields IN and anything else an
// equality. With a template, the template's term overrides term unless it is
// TermDefault, and values bind according to its placeholders.
func BuildCondition(term Term, quotedColumn string, value interface{}, tmpl *Template) (*Condition, error) {
	if tmpl == nil {
		return buildImplicit(term, quotedColumn, value), nil
	}

	if tmpl.Term != TermDefault {
		term = tmpl.Term
	}

	var values []interface{}
	switch tmpl.Style() {
	case ValueNone:
		sql, _ := tmpl.render(quotedColumn, nil)
		return &Condition{Term: term, SQL: sql}, nil

	case ValueSingle:
		if reflection.IsCollection(value) {
			items := reflection.CollectionValues(value)
			switch len(items) {
			case 0:
				return nil, nil
			case 1:
				value = items[0]
			default:
				return nil, NewValidationError(quotedColumn, ErrArgumentArity,
					"template %q takes a single value, got %d", tmpl.Text, len(items))
			}
		}
		values = []interface{}{tmpl.format(reflection.Deref(value))}

	case ValueList:
		items := asValues(value)
		if len(items) == 0 {
			return nil, nil
		}
		for _, v := range items {
			values = append(values, tmpl.format(v))
		}

	case ValueMultiple:
		items := asValues(value)
		if len(items) < tmpl.Arity() {
			return nil, NewValidationError(quotedColumn, ErrArgumentArity,
				"template %q needs %d values, got %d", tmpl.Text, tmpl.Arity(), len(items))
		}
		for _, v := range items {
			values = append(values, tmpl.format(v))
		}
	}

	sql, args := tmpl.render(quotedColumn, values)
	return &Condition{Term: term, SQL: sql, Args: args}, nil
}

func buildImplicit(term Term, quotedColumn string, value interface{}) *Condition {
	if reflection.IsCollection(value) {
		items := reflection.CollectionValues(value)
		if len(items) == 0 {
			return nil
		}
		return &Condition{
			Term: term,
			SQL:  quotedColumn + " IN (" + common.Placeholders(len(items)) + ")",
			Args: items,
		}
	}
	if reflection.IsNil(value) {
		return &Condition{Term: term, SQL: quotedColumn + " IS NULL"}
	}
	return &Condition{Term: term, SQL: quotedColumn + " = ?", Args: []interface{}{reflection.Deref(value)}}
}

func asValues(value interface{}) []interface{} {
	if reflection.IsCollection(value) {
		return reflection.CollectionValues(value)
	}
	if reflection.IsNil(value) {
		return nil
	}
	return []interface{}{reflection.Deref(value)}
}
