package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownName(t *testing.T) {
	k, ok := Lookup("cn+")
	require.True(t, ok)
	assert.Equal(t, CategoryChannel, k.Category())
	assert.Equal(t, TypeReal, k.ParamType())
}

func TestLookupUnknownName(t *testing.T) {
	_, ok := Lookup("not_a_real_event")
	assert.False(t, ok)
}

func TestParseRejectsUnknownName(t *testing.T) {
	_, err := Parse("bogus", Value{Type: TypeInt, I: 1})
	assert.Error(t, err)
}

func TestParseRejectsTypeMismatch(t *testing.T) {
	_, err := Parse("mt", Value{Type: TypeString, S: "oops"})
	assert.Error(t, err)
}

func TestParseAcceptsMatchingType(t *testing.T) {
	ev, err := Parse("mt", Value{Type: TypeFloat, F: 120})
	require.NoError(t, err)
	assert.Equal(t, KindSetTempo, ev.Kind)
	assert.Equal(t, 120.0, ev.Value.F)
}

func TestEveryDescriptorIsReachableByName(t *testing.T) {
	for k := Kind(0); k < kindCount; k++ {
		name := k.Name()
		if name == "" {
			continue
		}
		got, ok := Lookup(name)
		require.True(t, ok, "name %q should resolve", name)
		assert.Equal(t, k, got)
	}
}
