package kunquat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/project"
	"github.com/kunquat/kunquat-go/internal/voice"
	"github.com/kunquat/kunquat-go/internal/wbuf"
)

func TestInstrumentIndexParsesConventionalDeviceID(t *testing.T) {
	idx, ok := instrumentIndex("instrument-3")
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	_, ok = instrumentIndex("master")
	assert.False(t, ok)
}

func TestBuildGraphWiresSampleGainAndMixDevices(t *testing.T) {
	proj := &project.Project{
		Channels: 1,
		Tempo:    120,
		Devices: []project.DeviceDef{
			{ID: "instrument-0", Type: "sample", OutPorts: []string{"out_00", "out_01"}},
			{ID: "fx", Type: "gain", InPorts: []string{"in_00", "in_01"}, OutPorts: []string{"out_00", "out_01"}},
			{ID: "master", Type: "mix", InPorts: []string{"in_00", "in_01"}, OutPorts: []string{"out_00", "out_01"}},
		},
		Connections: []project.ConnectionDef{
			{FromDevice: "instrument-0", FromPort: "out_00", ToDevice: "fx", ToPort: "in_00"},
			{FromDevice: "instrument-0", FromPort: "out_01", ToDevice: "fx", ToPort: "in_01"},
			{FromDevice: "fx", FromPort: "out_00", ToDevice: "master", ToPort: "in_00"},
			{FromDevice: "fx", FromPort: "out_01", ToDevice: "master", ToPort: "in_01"},
		},
	}

	g, pools, err := buildGraph(proj)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Contains(t, pools, 0)
	require.NoError(t, g.Prepare(16))

	pools[0].Acquire(0, voice.PriorityForeground)
	samp := &voice.Sample{Frames: []float64{1, 1, 1, 1, 1, 1, 1, 1}, MiddleFreq: 1, SampleRate: 8}
	pools[0].Active(func(v *voice.Voice) {
		v.Params.BasePitchHz = 1
		v.Params.Sample = samp
		v.Params.GlobalForce = 1
		v.Params.ForceSlider.Set(1)
		// w0 = pi/2 at cutoff=2, sampleRate=8 gives exactly
		// computable biquad coefficients (cos(w0)=0), so the single
		// rendered frame below has an exact expected value instead
		// of an arbitrary filtered one.
		v.Params.FilterCutoffSlider.Set(2)
	})

	// A single mixed frame: 0.25 out of the instrument's biquad (computed
	// from sig=1, b0/a0=0.25 at this cutoff), gain halves and downmixes
	// L+R into both channels (0.5*(0.25+0.25)=0.25), then master sums fx's
	// two channels back together (0.25+0.25=0.5).
	require.NoError(t, g.Mix(context.Background(), 0, 1, 8, 120))

	out00 := g.Output("master", "out_00")
	out01 := g.Output("master", "out_01")
	require.NotNil(t, out00)
	require.NotNil(t, out01)
	assert.Equal(t, float32(0.5), out00.Data()[0])
	assert.Equal(t, float32(0.5), out01.Data()[0])
}

func TestEffectProcessorAppliesNamedChain(t *testing.T) {
	p := newEffectProcessor("distortion")
	inL := wbuf.New(4)
	inL.WriteRange(0, []float32{1, 1, 1, 1})
	inR := wbuf.New(4)
	inR.WriteRange(0, []float32{1, 1, 1, 1})
	outL := wbuf.New(4)
	outR := wbuf.New(4)

	ins := map[string]*wbuf.Buffer{"in_00": inL, "in_01": inR}
	outs := map[string]*wbuf.Buffer{"out_00": outL, "out_01": outR}

	require.NoError(t, p.Process(context.Background(), ins, outs, 0, 4, 44100, 120))
	assert.True(t, outL.Valid())
	assert.True(t, outR.Valid())
}

func TestEffectProcessorIsNoopWithoutDeclaredStereoOutputs(t *testing.T) {
	p := newEffectProcessor("reverb")
	outs := map[string]*wbuf.Buffer{"out_00": wbuf.New(4)}
	err := p.Process(context.Background(), nil, outs, 0, 4, 44100, 120)
	assert.NoError(t, err)
}

func TestSumProcessorMixesMultipleInputs(t *testing.T) {
	a := wbuf.New(4)
	a.WriteRange(0, []float32{1, 1, 1, 1})
	b := wbuf.New(4)
	b.WriteRange(0, []float32{2, 2, 2, 2})
	out := wbuf.New(4)

	s := sumProcessor{}
	require.NoError(t, s.Process(context.Background(), map[string]*wbuf.Buffer{"in_00": a, "in_01": b}, map[string]*wbuf.Buffer{"out_00": out}, 0, 4, 44100, 120))
	assert.Equal(t, []float32{3, 3, 3, 3}, out.Data())
}
