package devstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDeviceCreatesIndependentScratchPerThread(t *testing.T) {
	r := New()
	r.AddDevice("dev-1", 4)

	s0 := r.Scratch("dev-1", 0)
	s1 := r.Scratch("dev-1", 1)
	require.NotNil(t, s0)
	require.NotNil(t, s1)
	assert.NotSame(t, s0, s1)

	s0.Data["x"] = 1
	assert.NotEqual(t, s0.Data["x"], s1.Data["x"])
}

func TestSetAudioRateFansOutToAllDevices(t *testing.T) {
	r := New()
	r.AddDevice("a", 1)
	r.AddDevice("b", 1)

	r.SetAudioRate(48000)

	assert.Equal(t, 48000.0, r.Shared("a").AudioRate)
	assert.Equal(t, 48000.0, r.Shared("b").AudioRate)
}

func TestSetBufferSizeAndTempoFanOut(t *testing.T) {
	r := New()
	r.AddDevice("a", 1)

	r.SetBufferSize(256)
	r.SetTempo(128)

	assert.Equal(t, 256, r.Shared("a").BufferSize)
	assert.Equal(t, 128.0, r.Shared("a").Tempo)
}

func TestScratchOutOfRangeReturnsNil(t *testing.T) {
	r := New()
	r.AddDevice("a", 2)
	assert.Nil(t, r.Scratch("a", 2))
	assert.Nil(t, r.Scratch("missing", 0))
}

func TestRemoveDeviceClearsBothMaps(t *testing.T) {
	r := New()
	r.AddDevice("a", 1)
	r.RemoveDevice("a")

	assert.Nil(t, r.Shared("a"))
	assert.Nil(t, r.Scratch("a", 0))
}
