package autoquery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateStyle(t *testing.T) {
	tests := []struct {
		text  string
		style ValueStyle
		arity int
	}{
		{"{Field} IS NULL", ValueNone, 0},
		{"{Field} > {Value}", ValueSingle, 0},
		{"{Field} IN ({Values})", ValueList, 0},
		{"{Field} BETWEEN {Value1} AND {Value2}", ValueMultiple, 2},
		{"{Field} = {Unknown}", ValueNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tmpl := NewTemplate(tt.text)
			assert.Equal(t, tt.style, tmpl.Style())
			assert.Equal(t, tt.arity, tmpl.Arity())
		})
	}
}

func TestParseTerm(t *testing.T) {
	term, err := ParseTerm(" OR ")
	require.NoError(t, err)
	assert.Equal(t, TermOr, term)

	term, err = ParseTerm("")
	require.NoError(t, err)
	assert.Equal(t, TermDefault, term)

	_, err = ParseTerm("xor")
	assert.Error(t, err)
}

func TestBuildConditionImplicit(t *testing.T) {
	col := `"people"."age"`

	c, err := BuildCondition(TermAnd, col, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `"people"."age" IS NULL`, c.SQL)
	assert.Empty(t, c.Args)

	c, err = BuildCondition(TermAnd, col, []int{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c, "empty collection adds no condition")

	c, err = BuildCondition(TermOr, col, []int{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, `"people"."age" IN (?, ?)`, c.SQL)
	assert.Equal(t, []interface{}{1, 2}, c.Args)
	assert.Equal(t, TermOr, c.Term)

	age := 42
	c, err = BuildCondition(TermAnd, col, &age, nil)
	require.NoError(t, err)
	assert.Equal(t, `"people"."age" = ?`, c.SQL)
	assert.Equal(t, []interface{}{42}, c.Args)
}

func TestBuildConditionTemplates(t *testing.T) {
	col := `"people"."name"`

	t.Run("single value with format", func(t *testing.T) {
		tmpl := NewTemplate("UPPER({Field}) LIKE UPPER({Value})").WithValueFormat("%{0}%")
		c, err := BuildCondition(TermAnd, col, "ann", tmpl)
		require.NoError(t, err)
		assert.Equal(t, `UPPER("people"."name") LIKE UPPER(?)`, c.SQL)
		assert.Equal(t, []interface{}{"%ann%"}, c.Args)
	})

	t.Run("single value from one element", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, col, []string{"ann"}, NewTemplate("{Field} > {Value}"))
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"ann"}, c.Args)
	})

	t.Run("single value rejects several", func(t *testing.T) {
		_, err := BuildCondition(TermAnd, col, []string{"a", "b"}, NewTemplate("{Field} > {Value}"))
		assert.True(t, errors.Is(err, ErrArgumentArity))
	})

	t.Run("list", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, col, []string{"a", "b", "c"}, NewTemplate("{Field} IN ({Values})"))
		require.NoError(t, err)
		assert.Equal(t, `"people"."name" IN (?, ?, ?)`, c.SQL)
		assert.Len(t, c.Args, 3)
	})

	t.Run("empty list", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, col, []string{}, NewTemplate("{Field} IN ({Values})"))
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("multiple", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, `"people"."age"`, []int{20, 30}, NewTemplate("{Field} BETWEEN {Value1} AND {Value2}"))
		require.NoError(t, err)
		assert.Equal(t, `"people"."age" BETWEEN ? AND ?`, c.SQL)
		assert.Equal(t, []interface{}{20, 30}, c.Args)
	})

	t.Run("multiple arity not satisfied", func(t *testing.T) {
		_, err := BuildCondition(TermAnd, `"people"."age"`, []int{20}, NewTemplate("{Field} BETWEEN {Value1} AND {Value2}"))
		require.Error(t, err)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve))
		assert.True(t, IsClientError(err))
	})

	t.Run("template term wins", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, col, "x", NewTemplate("{Field} = {Value}").WithTerm(TermOr))
		require.NoError(t, err)
		assert.Equal(t, TermOr, c.Term)
	})

	t.Run("no value placeholder", func(t *testing.T) {
		c, err := BuildCondition(TermAnd, col, true, NewTemplate("{Field} IS NOT NULL"))
		require.NoError(t, err)
		assert.Equal(t, `"people"."name" IS NOT NULL`, c.SQL)
		assert.Empty(t, c.Args)
	})
}

func TestWhereClauseFolding(t *testing.T) {
	q := &SqlExpression{}
	q.Where(TermAnd, "a").Where(TermAnd, "b").Where(TermOr, "c")
	where, _ := q.WhereClause()
	assert.Equal(t, "(a AND b) OR c", where)

	q.Ensure("e = ?", 1)
	where, args := q.WhereClause()
	assert.Equal(t, "e = ? AND ((a AND b) OR c)", where)
	assert.Equal(t, []interface{}{1}, args)

	q.matchNone = true
	where, _ = q.WhereClause()
	assert.Equal(t, "e = ? AND 1=0", where)
}

func TestSqlExpressionCloneIsIndependent(t *testing.T) {
	q := &SqlExpression{Select: []string{"a"}}
	q.Where(TermAnd, "x = 1")
	c := q.Clone()
	c.Select[0] = "b"
	c.Where(TermAnd, "y = 2")

	assert.Equal(t, "a", q.Select[0])
	where, _ := q.WhereClause()
	assert.Equal(t, "x = 1", where)
}
