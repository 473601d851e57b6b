package autoquery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/autoquery/pkg/reflection"
)

type Overlap struct {
	Id       int64
	AgeBelow int
	AboveAge int
}

func personModels(t *testing.T) []*reflection.ModelMetadata {
	t.Helper()
	meta, err := reflection.GetModelMetadata(Person{})
	require.NoError(t, err)
	return []*reflection.ModelMetadata{meta}
}

func TestMatchExactAndPlural(t *testing.T) {
	opts := DefaultOptions()
	m := NewFieldMatcher(&opts)
	models := personModels(t)

	mf, ok := m.Match("name", models, nil)
	require.True(t, ok)
	assert.Equal(t, "Name", mf.Field.Name)
	assert.Nil(t, mf.Template)

	mf, ok = m.Match("Ages", models, nil)
	require.True(t, ok)
	assert.Equal(t, "Age", mf.Field.Name)

	mf, ok = m.Match("deleted_date", models, nil)
	require.True(t, ok)
	assert.Equal(t, "DeletedDate", mf.Field.Name)
}

func TestMatchConventions(t *testing.T) {
	opts := DefaultOptions()
	m := NewFieldMatcher(&opts)
	models := personModels(t)

	tests := []struct {
		name     string
		field    string
		template string
	}{
		{"AgeGreaterThan", "Age", "{Field} > {Value}"},
		{"GreaterThanAge", "Age", "{Field} > {Value}"},
		{"AgeGreaterThanOrEqualTo", "Age", "{Field} >= {Value}"},
		{"NameStartsWith", "Name", "UPPER({Field}) LIKE UPPER({Value})"},
		{"AgeBetween", "Age", "{Field} BETWEEN {Value1} AND {Value2}"},
		{"NameIsNull", "Name", "{Field} IS NULL"},
		{"AgeIn", "Age", "{Field} IN ({Values})"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mf, ok := m.Match(tt.name, models, nil)
			require.True(t, ok)
			assert.Equal(t, tt.field, mf.Field.Name)
			require.NotNil(t, mf.Template)
			assert.Equal(t, tt.template, mf.Template.Text)
		})
	}
}

// A name readable both as prefix+field and field+suffix resolves through the
// prefix table, which is consulted first.
func TestMatchPrefixBeforeSuffix(t *testing.T) {
	opts := DefaultOptions()
	m := NewFieldMatcher(&opts)
	meta, err := reflection.GetModelMetadata(Overlap{})
	require.NoError(t, err)

	mf, ok := m.Match("AboveAgeBelow", []*reflection.ModelMetadata{meta}, nil)
	require.True(t, ok)
	assert.Equal(t, "AgeBelow", mf.Field.Name)
	assert.Equal(t, "{Field} > {Value}", mf.Template.Text)
}

func TestMatchAliasesAndIgnore(t *testing.T) {
	opts := DefaultOptions()
	opts.IgnoreProperties = []string{"Active"}
	m := NewFieldMatcher(&opts)
	models := personModels(t)

	mf, ok := m.Match("Years", models, map[string]string{"years": "Age"})
	require.True(t, ok)
	assert.Equal(t, "Age", mf.Field.Name)

	_, ok = m.Match("Active", models, nil)
	assert.False(t, ok, "ignored properties never match")

	_, ok = m.Match("Take", models, nil)
	assert.False(t, ok)
}

// Unknown parameter names are dropped rather than rejected.
func TestMatchUnknownNameIsDropped(t *testing.T) {
	opts := DefaultOptions()
	m := NewFieldMatcher(&opts)

	_, ok := m.Match("Bogus", personModels(t), nil)
	assert.False(t, ok)
	_, ok = m.Match("", personModels(t), nil)
	assert.False(t, ok)
}

func TestValidateSQLFragment(t *testing.T) {
	illegal := DefaultIllegalSQLFragmentTokens()

	assert.NoError(t, ValidateSQLFragment(RawWhere, "age > 30 AND name = 'ann'", illegal))
	assert.NoError(t, ValidateSQLFragment(RawWhere, "selected = 1", illegal), "tokens match whole words")

	for _, frag := range []string{
		"1=1; DROP TABLE people",
		"age > 1 -- comment",
		"name = 'x' UNION SELECT password FROM users",
		"pg_sleep(10) IS NULL",
	} {
		err := ValidateSQLFragment(RawWhere, frag, illegal)
		require.Error(t, err, frag)
		assert.True(t, errors.Is(err, ErrIllegalSQLFragment))
	}
}

func TestRawFragmentsAreStripped(t *testing.T) {
	raw, rest := rawFragments(map[string]string{"_Where": "a = 1", "Name": "x"})
	assert.Equal(t, map[string]string{RawWhere: "a = 1"}, raw)
	assert.Equal(t, map[string]string{"Name": "x"}, rest)
}
