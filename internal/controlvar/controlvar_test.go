package controlvar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/expr"
)

func TestSetAppliesBindingsToSink(t *testing.T) {
	r := NewRegistry(nil)
	r.Declare("cutoff", TypeFloat, Range{Min: 0, Max: 127}, expr.FloatValue(0))

	e, err := expr.Parse("$ * 2")
	require.NoError(t, err)
	require.NoError(t, r.Bind("cutoff", Binding{TargetDevice: "filter", TargetVar: "cutoff_hz", Expr: e}))

	var got expr.Value
	var dev, varName string
	sink := func(d, v string, val expr.Value) error {
		dev, varName, got = d, v, val
		return nil
	}
	require.NoError(t, r.Set("cutoff", expr.FloatValue(10), sink))
	assert.Equal(t, "filter", dev)
	assert.Equal(t, "cutoff_hz", varName)
	assert.Equal(t, 20.0, got.AsFloat())

	v, ok := r.Value("cutoff")
	require.True(t, ok)
	assert.Equal(t, 10.0, v.AsFloat())
}

func TestSetRejectsOutOfRangeValue(t *testing.T) {
	r := NewRegistry(nil)
	r.Declare("gain", TypeInt, Range{Min: 0, Max: 10}, expr.IntValue(0))

	err := r.Set("gain", expr.IntValue(20), nil)
	assert.Error(t, err)
}

func TestSetOnUndeclaredVariableErrors(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Set("missing", expr.IntValue(1), nil)
	assert.Error(t, err)
}

func TestBindOnUndeclaredVariableErrors(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Bind("missing", Binding{})
	assert.Error(t, err)
}

func TestUnconstrainedRangeAcceptsAnyValue(t *testing.T) {
	r := NewRegistry(nil)
	r.Declare("phase", TypeFloat, Range{}, expr.FloatValue(0))
	require.NoError(t, r.Set("phase", expr.FloatValue(-1000), nil))
	require.NoError(t, r.Set("phase", expr.FloatValue(1000), nil))
}

func TestDirectBindingWithNoExpressionPassesValueThrough(t *testing.T) {
	r := NewRegistry(nil)
	r.Declare("vol", TypeFloat, Range{}, expr.FloatValue(0))
	require.NoError(t, r.Bind("vol", Binding{TargetDevice: "amp", TargetVar: "gain"}))

	var got expr.Value
	sink := func(d, v string, val expr.Value) error {
		got = val
		return nil
	}
	require.NoError(t, r.Set("vol", expr.FloatValue(5), sink))
	assert.Equal(t, 5.0, got.AsFloat())
}
