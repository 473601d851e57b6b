package script

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalLiterals(t *testing.T) {
	e := NewEvaluator()
	ctx := context.Background()

	tests := []struct {
		directive string
		expected  any
	}{
		{"'hello'", "hello"},
		{`"quoted"`, "quoted"},
		{"42", int64(42)},
		{"1.5", 1.5},
		{"true", true},
		{"FALSE", false},
		{"null", nil},
	}
	for _, tt := range tests {
		t.Run(tt.directive, func(t *testing.T) {
			v, err := e.Eval(ctx, tt.directive)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestEvalFunctions(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	e := NewEvaluator().WithClock(func() time.Time { return fixed })
	ctx := WithRequestContext(context.Background(), &RequestContext{
		UserAuthID:   "u-1",
		UserAuthName: "alice",
		Items:        map[string]any{"tenant": 7},
	})

	v, err := e.Eval(ctx, "utcnow")
	require.NoError(t, err)
	assert.Equal(t, fixed.UTC(), v)

	v, err = e.Eval(ctx, "now()")
	require.NoError(t, err)
	assert.Equal(t, fixed, v)

	v, err = e.Eval(ctx, "userAuthName")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	v, err = e.Eval(ctx, "USERAUTHID")
	require.NoError(t, err)
	assert.Equal(t, "u-1", v)

	v, err = e.Eval(ctx, "item:tenant")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = e.Eval(ctx, "uuid")
	require.NoError(t, err)
	_, parseErr := uuid.Parse(v.(string))
	assert.NoError(t, parseErr)
}

func TestEvalErrors(t *testing.T) {
	e := NewEvaluator()
	ctx := context.Background()

	_, err := e.Eval(ctx, "")
	assert.Error(t, err)
	_, err = e.Eval(ctx, "nosuchfunc")
	assert.Error(t, err)
	_, err = e.Eval(ctx, "item:missing")
	assert.Error(t, err)
}

func TestRegisterCustomFunction(t *testing.T) {
	e := NewEvaluator()
	e.Register("tenantId", func(context.Context) (any, error) { return 99, nil })

	v, err := e.Eval(context.Background(), "tenantid")
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestFromContextWithoutValue(t *testing.T) {
	rc := FromContext(context.Background())
	require.NotNil(t, rc)
	assert.Empty(t, rc.UserAuthName)
}
