package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/expr"
)

func TestFirstMatchFiresUnconditionalCascade(t *testing.T) {
	arg, err := expr.Parse("1.0")
	require.NoError(t, err)

	b := NewBuilder()
	b.Add("cn+", Cascade{Targets: []Target{{EventName: "Af", Arg: arg}}})
	m, err := b.Build()
	require.NoError(t, err)

	c, err := m.FirstMatch("cn+", NewCache(nil))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Af", c.Targets[0].EventName)
}

func TestFirstMatchSkipsCascadeWhoseConstraintFails(t *testing.T) {
	cond, err := expr.Parse("$ > 10")
	require.NoError(t, err)

	b := NewBuilder()
	b.Add("cn+", Cascade{Constraint: cond, Targets: []Target{{EventName: "high"}}})
	b.Add("cn+", Cascade{Targets: []Target{{EventName: "fallback"}}})
	m, err := b.Build()
	require.NoError(t, err)

	cache := NewCache(nil)
	env := cache.WithFiring(expr.IntValue(1))
	c, err := m.FirstMatch("cn+", env)
	require.NoError(t, err)
	assert.Equal(t, "fallback", c.Targets[0].EventName)

	env2 := cache.WithFiring(expr.IntValue(20))
	c2, err := m.FirstMatch("cn+", env2)
	require.NoError(t, err)
	assert.Equal(t, "high", c2.Targets[0].EventName)
}

func TestBuildRejectsDirectCycle(t *testing.T) {
	b := NewBuilder()
	b.Add("a", Cascade{Targets: []Target{{EventName: "b"}}})
	b.Add("b", Cascade{Targets: []Target{{EventName: "a"}}})

	_, err := b.Build()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildRejectsIndirectCycle(t *testing.T) {
	b := NewBuilder()
	b.Add("a", Cascade{Targets: []Target{{EventName: "b"}}})
	b.Add("b", Cascade{Targets: []Target{{EventName: "c"}}})
	b.Add("c", Cascade{Targets: []Target{{EventName: "a"}}})

	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuildAcceptsAcyclicChain(t *testing.T) {
	b := NewBuilder()
	b.Add("a", Cascade{Targets: []Target{{EventName: "b"}}})
	b.Add("b", Cascade{Targets: []Target{{EventName: "c"}}})

	m, err := b.Build()
	require.NoError(t, err)
	assert.True(t, m.HasTrigger("a"))
	assert.False(t, m.HasTrigger("z"))
}

func TestMatchesReturnsAllSatisfiedCascades(t *testing.T) {
	b := NewBuilder()
	b.Add("cn+", Cascade{Targets: []Target{{EventName: "x"}}})
	b.Add("cn+", Cascade{Targets: []Target{{EventName: "y"}}})
	m, err := b.Build()
	require.NoError(t, err)

	cs, err := m.Matches("cn+", NewCache(nil))
	require.NoError(t, err)
	assert.Len(t, cs, 2)
}

func TestEventCacheWithFiringLeavesSharedCacheUntouched(t *testing.T) {
	cache := NewCache(nil)
	cache.Set("cn+", expr.IntValue(5))

	env := cache.WithFiring(expr.IntValue(99))
	v, ok := env.Lookup("$")
	require.True(t, ok)
	assert.Equal(t, int64(99), v.Int)

	v2, ok := cache.Lookup("cn+")
	require.True(t, ok)
	assert.Equal(t, int64(5), v2.Int)

	_, ok = cache.Lookup("$")
	assert.False(t, ok)
}
