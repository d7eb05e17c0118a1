package curve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueAtExactAtNodes(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {1, 1}, {2, 0.5}})
	assert.Equal(t, 0.0, e.ValueAt(0))
	assert.Equal(t, 1.0, e.ValueAt(1))
	assert.Equal(t, 0.5, e.ValueAt(2))
}

func TestValueAtInterpolatesLinearly(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {2, 10}})
	assert.InDelta(t, 5.0, e.ValueAt(1), 1e-9)
}

func TestValueAtClampsPastLastNodeWithoutLoop(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {1, 3}})
	assert.Equal(t, 3.0, e.ValueAt(5))
}

func TestValueAtWrapsIntoLoop(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {1, 1}, {2, 0}})
	e.SetLoop(1, 2)
	// Beyond loop end (x=2), wraps into [1,2).
	assert.InDelta(t, e.ValueAt(1.5), e.ValueAt(2.5), 1e-9)
}

func TestValueAtContinuous(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {1, 1}, {2, -1}, {3, 0}})
	prev := e.ValueAt(0)
	for x := 0.0; x <= 3.0; x += 0.01 {
		v := e.ValueAt(x)
		assert.InDelta(t, prev, v, 0.02)
		prev = v
	}
}

func TestStateFinishedWithoutLoop(t *testing.T) {
	e := NewEnvelope([]Node{{0, 0}, {1, 1}})
	s := NewState(e)
	s.Step(0.5)
	assert.False(t, s.Finished)
	s.Step(1.0)
	assert.True(t, s.Finished)
}

func TestSliderReachesTargetAndHolds(t *testing.T) {
	var s Slider
	s.Set(0)
	s.SlideTo(10, 5)
	var last float64
	for i := 0; i < 5; i++ {
		last = s.Step()
	}
	assert.Equal(t, 10.0, last)
	assert.Equal(t, 10.0, s.Step())
	assert.False(t, s.Active())
}

func TestSliderImmediateWhenZeroFrames(t *testing.T) {
	var s Slider
	s.Set(0)
	s.SlideTo(5, 0)
	assert.Equal(t, 5.0, s.Value())
}

func TestLFOPhaseWrapsAndProducesBoundedFactor(t *testing.T) {
	l := NewLFO(false)
	l.SetSpeed(10, 0)
	l.SetDepth(6, 0) // 6 dB depth -> factor in [0.5, 2] roughly (exp2(+-1))
	minF, maxF := math.Inf(1), math.Inf(-1)
	for i := 0; i < 10000; i++ {
		f := l.Step(1000)
		if f < minF {
			minF = f
		}
		if f > maxF {
			maxF = f
		}
	}
	assert.InDelta(t, 2.0, maxF, 0.05)
	assert.InDelta(t, 0.5, minF, 0.05)
}

func TestLFODepthDelayRampsFromZero(t *testing.T) {
	l := NewLFO(false)
	l.SetSpeed(1000, 0) // fast enough to sample the sine promptly
	l.SetDepth(6, 0)
	l.SetDelay(100)
	// Early on, depth should be attenuated (ramping), so the produced
	// factor should be closer to 1 than the fully-ramped factor.
	var early float64 = 1
	for i := 0; i < 5; i++ {
		early = l.Step(48000)
	}
	assert.InDelta(t, 1.0, early, 0.2)
}
