package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineSample(n int, freq, rate float64) *Sample {
	frames := make([]float64, n)
	for i := range frames {
		frames[i] = float64(i % 100)
	}
	return &Sample{
		Frames:     frames,
		MiddleFreq: freq,
		SampleRate: rate,
		Loop:       LoopNone,
	}
}

func TestPoolAcquireFillsInactiveSlotsFirst(t *testing.T) {
	p := NewPool(2)
	v1, ok := p.Acquire(0, PriorityForeground)
	require.True(t, ok)
	v2, ok := p.Acquire(0, PriorityForeground)
	require.True(t, ok)
	assert.NotEqual(t, v1.ID(), v2.ID())
	assert.Equal(t, 2, p.ActiveCount())
}

func TestPoolAcquireStealsLowestPriorityWhenFull(t *testing.T) {
	p := NewPool(2)
	v1, _ := p.Acquire(0, PriorityBackground)
	_, _ = p.Acquire(0, PriorityForeground)
	id1 := v1.ID()

	v3, ok := p.Acquire(0, PriorityForeground)
	require.True(t, ok, "third acquire should steal the background voice")
	assert.NotEqual(t, id1, v3.ID())

	_, found := p.Lookup(id1)
	assert.False(t, found, "stale id from stolen voice must no longer resolve")
}

func TestPoolAcquireFailsWhenAllForegroundAndDesiredIsBackground(t *testing.T) {
	p := NewPool(1)
	_, _ = p.Acquire(0, PriorityForeground)

	_, ok := p.Acquire(0, PriorityBackground)
	assert.False(t, ok)
}

func TestPoolLookupRejectsWrongSlotOrStaleCounter(t *testing.T) {
	p := NewPool(1)
	v, _ := p.Acquire(0, PriorityForeground)
	id := v.ID()

	got, ok := p.Lookup(id)
	require.True(t, ok)
	assert.Same(t, v, got)

	require.NoError(t, p.Release(id))
	_, ok = p.Lookup(id)
	assert.False(t, ok)
}

func TestVoiceNoteOffWithoutReleaseEnvelopeRampsToSilence(t *testing.T) {
	p := NewPool(1)
	v, _ := p.Acquire(0, PriorityForeground)
	v.Params.BasePitchHz = 440
	v.Params.ForceSlider.Set(1)
	v.Params.GlobalForce = 1
	v.Params.PanSlider.Set(0)
	v.Params.Sample = sineSample(10000, 440, 44100)
	v.noteOn = true

	out := make([]float64, 2*100)
	v.Render(out, 0, 50, 44100)
	assert.False(t, v.Finished())

	v.NoteOff()
	assert.Greater(t, v.releaseRampLeft, 0)

	v.Render(out, 50, 100, 44100)
	for v.releaseRampLeft > 0 && !v.Finished() {
		v.Render(out, 0, 1, 44100)
	}
	assert.True(t, v.Finished())
}

func TestVoiceRenderWithoutSampleIsNoop(t *testing.T) {
	v := newVoice()
	out := make([]float64, 20)
	v.Render(out, 0, 10, 44100)
	for _, s := range out {
		assert.Equal(t, 0.0, s)
	}
}

func TestBiquadStepIsStableForConstantInput(t *testing.T) {
	c := biquadCoeffs(1000, 0.7, 44100)
	var s biquadState
	var last float64
	for i := 0; i < 2000; i++ {
		last = s.step(c, 1.0)
	}
	assert.InDelta(t, 1.0, last, 0.05)
}

func TestLoopUnidirectionalWrapsWithinLoopRegion(t *testing.T) {
	v := newVoice()
	samp := &Sample{
		Frames:     []float64{0, 1, 2, 3, 4, 5, 6, 7},
		MiddleFreq: 440,
		SampleRate: 44100,
		Loop:       LoopUnidirectional,
		LoopStart:  2,
		LoopEnd:    6,
	}
	v.samplePos = 5.9
	_, ok := v.readSample(samp, 440, 44100)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v.samplePos, float64(samp.LoopStart))
	assert.Less(t, v.samplePos, float64(samp.LoopEnd))
}

func TestLoopBidirectionalReversesDirectionAtBounds(t *testing.T) {
	v := newVoice()
	samp := &Sample{
		Frames:     []float64{0, 1, 2, 3, 4, 5, 6, 7},
		MiddleFreq: 440,
		SampleRate: 44100,
		Loop:       LoopBidirectional,
		LoopStart:  1,
		LoopEnd:    6,
	}
	v.samplePos = 1
	v.sampleDir = 1
	for i := 0; i < 50; i++ {
		_, _ = v.readSample(samp, 440*2, 44100)
	}
	assert.GreaterOrEqual(t, v.samplePos, float64(samp.LoopStart)-1)
	assert.LessOrEqual(t, v.samplePos, float64(samp.LoopEnd)+1)
}

func TestPoolMixAccumulatesActiveVoices(t *testing.T) {
	p := NewPool(2)
	v1, _ := p.Acquire(0, PriorityForeground)
	v1.Params.BasePitchHz = 440
	v1.Params.ForceSlider.Set(0.5)
	v1.Params.GlobalForce = 1
	v1.Params.Sample = sineSample(5000, 440, 44100)
	v1.noteOn = true

	v2, _ := p.Acquire(1, PriorityForeground)
	v2.Params.BasePitchHz = 220
	v2.Params.ForceSlider.Set(0.5)
	v2.Params.GlobalForce = 1
	v2.Params.Sample = sineSample(5000, 220, 44100)
	v2.noteOn = true

	out := make([]float64, 2*32)
	p.Mix(out, 0, 32, 44100)
	assert.Equal(t, 2, p.ActiveCount())
}
