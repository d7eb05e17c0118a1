package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

type mapEnv struct {
	vars map[string]Value
	r    float64
}

func (e mapEnv) Lookup(name string) (Value, bool) {
	if name == "$" {
		v, ok := e.vars["$"]
		return v, ok
	}
	v, ok := e.vars[name]
	return v, ok
}

func (e mapEnv) Rand() float64 { return e.r }

func TestArithmeticPrecedence(t *testing.T) {
	v, err := Eval("1 + 2 * 3", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	v, err := Eval("(1 + 2) * 3", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.Int)
}

func TestComparisonOperators(t *testing.T) {
	v, err := Eval("3 > 2", nil)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Eval("3 = 3.0", nil)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Eval("3 != 4", nil)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestLogicalOperatorsShortCircuit(t *testing.T) {
	env := mapEnv{vars: map[string]Value{}}
	v, err := Eval("false and undefined_var", env)
	require.NoError(t, err) // short circuit: right side never evaluated
	assert.False(t, v.AsBool())

	v, err = Eval("true or undefined_var", env)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestNotOperator(t *testing.T) {
	v, err := Eval("not false", nil)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestDollarVariableFromEnv(t *testing.T) {
	env := mapEnv{vars: map[string]Value{"$": IntValue(5)}}
	v, err := Eval("$ * 2", env)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.Int)
}

func TestIdentifierLookupFromEventCache(t *testing.T) {
	env := mapEnv{vars: map[string]Value{"cn+": FloatValue(64)}}
	v, err := Eval("cn+ > 32", env)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestUnboundVariableErrors(t *testing.T) {
	env := mapEnv{vars: map[string]Value{}}
	_, err := Eval("missing", env)
	assert.Error(t, err)
}

func TestRandBuiltin(t *testing.T) {
	env := mapEnv{r: 0.75}
	v, err := Eval("rand()", env)
	require.NoError(t, err)
	assert.Equal(t, 0.75, v.AsFloat())
}

func TestDivisionByZeroErrors(t *testing.T) {
	_, err := Eval("1 / 0", nil)
	assert.Error(t, err)
}

func TestParseOnceEvalManyAgainstDifferentEnvs(t *testing.T) {
	node, err := Parse("$ > 10")
	require.NoError(t, err)

	low, err := node.Eval(mapEnv{vars: map[string]Value{"$": IntValue(1)}})
	require.NoError(t, err)
	assert.False(t, low.AsBool())

	high, err := node.Eval(mapEnv{vars: map[string]Value{"$": IntValue(20)}})
	require.NoError(t, err)
	assert.True(t, high.AsBool())
}

func TestTstampArithmetic(t *testing.T) {
	env := mapEnv{vars: map[string]Value{"$": TstampValue(tstamp.FromBeats(2))}}
	v, err := Eval("$ + 3", env)
	require.NoError(t, err)
	assert.Equal(t, KindTstamp, v.Kind)
	assert.Equal(t, tstamp.FromBeats(5), v.Tstamp)
}
