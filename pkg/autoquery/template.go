package autoquery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bitechdev/autoquery/pkg/common"
)

// Term is how a condition joins the ones before it.
type Term int

const (
	// TermDefault defers to the request's default term.
	TermDefault Term = iota
	TermAnd
	TermOr
	// TermEnsure conditions are mandatory and ANDed outside the caller's filters.
	TermEnsure
)

func (t Term) String() string {
	switch t {
	case TermAnd:
		return "AND"
	case TermOr:
		return "OR"
	case TermEnsure:
		return "ENSURE"
	}
	return "DEFAULT"
}

// ParseTerm reads and/or/ensure (case-insensitive). An empty string is TermDefault.
func ParseTerm(s string) (Term, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TermDefault, nil
	case "and":
		return TermAnd, nil
	case "or":
		return TermOr, nil
	case "ensure":
		return TermEnsure, nil
	}
	return TermDefault, fmt.Errorf("unknown term %q", s)
}

// ValueStyle is derived from the value placeholders a template uses.
type ValueStyle int

const (
	ValueNone     ValueStyle = iota // no value placeholder, e.g. "{Field} IS NULL"
	ValueSingle                     // {Value}
	ValueList                       // {Values}
	ValueMultiple                   // {Value1} .. {ValueN}
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokField
	tokValue
	tokValues
	tokValueN
)

type token struct {
	kind tokenKind
	text string
	n    int
}

// Template is a parameterized SQL predicate such as "{Field} > {Value}".
// It is immutable once built.
type Template struct {
	Text        string
	Term        Term
	ValueFormat string // applied to each value, "{0}" is replaced by the value

	tokens []token
	style  ValueStyle
	arity  int
}

// NewTemplate parses text into a template.
func NewTemplate(text string) *Template {
	t := &Template{Text: text}
	t.parse()
	return t
}

// WithTerm returns a copy of the template forcing term.
func (t *Template) WithTerm(term Term) *Template {
	c := *t
	c.Term = term
	return &c
}

// WithValueFormat returns a copy of the template formatting each value with format.
func (t *Template) WithValueFormat(format string) *Template {
	c := *t
	c.ValueFormat = format
	return &c
}

// Style reports which value placeholders the template uses.
func (t *Template) Style() ValueStyle { return t.style }

// Arity is the number of positional values a ValueMultiple template needs.
func (t *Template) Arity() int { return t.arity }

func (t *Template) parse() {
	s := t.Text
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			t.tokens = append(t.tokens, token{kind: tokText, text: s})
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			t.tokens = append(t.tokens, token{kind: tokText, text: s})
			break
		}
		end += open
		if open > 0 {
			t.tokens = append(t.tokens, token{kind: tokText, text: s[:open]})
		}
		name := s[open+1 : end]
		switch {
		case name == "Field":
			t.tokens = append(t.tokens, token{kind: tokField})
		case name == "Value":
			t.tokens = append(t.tokens, token{kind: tokValue})
			t.raise(ValueSingle)
		case name == "Values":
			t.tokens = append(t.tokens, token{kind: tokValues})
			t.raise(ValueList)
		case strings.HasPrefix(name, "Value"):
			n, err := strconv.Atoi(name[len("Value"):])
			if err != nil || n < 1 {
				t.tokens = append(t.tokens, token{kind: tokText, text: s[open : end+1]})
				break
			}
			t.tokens = append(t.tokens, token{kind: tokValueN, n: n})
			t.raise(ValueMultiple)
			if n > t.arity {
				t.arity = n
			}
		default:
			t.tokens = append(t.tokens, token{kind: tokText, text: s[open : end+1]})
		}
		s = s[end+1:]
	}
}

func (t *Template) raise(style ValueStyle) {
	if style > t.style {
		t.style = style
	}
}

// render substitutes the column and binds values as ? placeholders in the
// order they appear in the text.
func (t *Template) render(column string, values []interface{}) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokText:
			sb.WriteString(tok.text)
		case tokField:
			sb.WriteString(column)
		case tokValue:
			sb.WriteString("?")
			if len(values) > 0 {
				args = append(args, values[0])
			} else {
				args = append(args, nil)
			}
		case tokValues:
			sb.WriteString(common.Placeholders(len(values)))
			args = append(args, values...)
		case tokValueN:
			sb.WriteString("?")
			args = append(args, values[tok.n-1])
		}
	}
	return sb.String(), args
}

func (t *Template) format(v interface{}) interface{} {
	if t.ValueFormat == "" || v == nil {
		return v
	}
	return strings.ReplaceAll(t.ValueFormat, "{0}", fmt.Sprint(v))
}
