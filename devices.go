package kunquat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kunquat/kunquat-go/internal/effects"
	"github.com/kunquat/kunquat-go/internal/graph"
	"github.com/kunquat/kunquat-go/internal/project"
	"github.com/kunquat/kunquat-go/internal/voice"
	"github.com/kunquat/kunquat-go/internal/wbuf"
)

// voicePoolSize is the per-instrument voice pool allocation. Real projects
// would read this from p_instrument.json (out of scope, spec §1); a fixed
// size is the pragmatic default for the in-memory project contract.
const voicePoolSize = 16

// instrumentProcessor renders a voice.Pool's active voices into stereo
// output ports ("out_00" left, "out_01" right), the graph-side half of a
// "sample" device. Grounded on internal/voice/render.go's Pool.Mix
// interleaved output, de-interleaved here onto the graph's mono ports.
type instrumentProcessor struct {
	pool    *voice.Pool
	scratch []float64
}

func newInstrumentProcessor(pool *voice.Pool) *instrumentProcessor {
	return &instrumentProcessor{pool: pool}
}

func (p *instrumentProcessor) Process(ctx context.Context, ins, outs map[string]*wbuf.Buffer, start, stop int, sampleRate, tempo float64) error {
	n := stop - start
	if n <= 0 {
		return nil
	}
	need := 2 * n
	if cap(p.scratch) < need {
		p.scratch = make([]float64, need)
	}
	p.scratch = p.scratch[:need]
	for i := range p.scratch {
		p.scratch[i] = 0
	}
	p.pool.Mix(p.scratch, 0, n, sampleRate)

	if out, ok := outs["out_00"]; ok && out != nil {
		left := make([]float32, n)
		for i := 0; i < n; i++ {
			left[i] = float32(p.scratch[2*i])
		}
		out.WriteRange(start, left)
	}
	if out, ok := outs["out_01"]; ok && out != nil {
		right := make([]float32, n)
		for i := 0; i < n; i++ {
			right[i] = float32(p.scratch[2*i+1])
		}
		out.WriteRange(start, right)
	}
	return nil
}

// sumProcessor sums every valid input port into every declared output
// port: the generic mix point a "mix"/master device, or any device whose
// type buildGraph does not recognise, reduces to. Adapted from a graph
// package test double into a real, wired device type.
type sumProcessor struct{}

func (sumProcessor) Process(ctx context.Context, ins, outs map[string]*wbuf.Buffer, start, stop int, sampleRate, tempo float64) error {
	for _, out := range outs {
		if out == nil {
			continue
		}
		out.Clear(start, stop)
		for _, in := range ins {
			if in != nil && in.Valid() {
				out.MixFrom(in, start, stop, nil)
			}
		}
	}
	return nil
}

// gainProcessor scales every input by Gain before summing into the output
// ports — the minimal "effect" device spec §8 scenario 6 exercises (x0.5).
type gainProcessor struct{ Gain float32 }

func (g gainProcessor) Process(ctx context.Context, ins, outs map[string]*wbuf.Buffer, start, stop int, sampleRate, tempo float64) error {
	for _, out := range outs {
		if out == nil {
			continue
		}
		out.Clear(start, stop)
		data := out.Data()
		for _, in := range ins {
			if in == nil || !in.Valid() {
				continue
			}
			idata := in.Data()
			for i := start; i < stop && i < len(idata) && i < len(data); i++ {
				data[i] += idata[i] * g.Gain
			}
		}
		// Declare the written range as real signal, not the constant zero
		// that Clear declared, so downstream MixFrom calls add it.
		if stop <= len(data) {
			out.WriteRange(start, data[start:stop])
		}
	}
	return nil
}

// effectProcessor runs a named stereo effects.Chain (chorus, delay,
// distortion, compressor, reverb, eq3, eq5) over an "effect" device's
// in_00/in_01 -> out_00/out_01 ports, built lazily on first render once
// the session's sample rate is known. Adapted from the teacher's
// per-sample Effector chain (internal/effects), previously only exercised
// from player.go's MML playback path, now a first-class device graph node
// of its own.
type effectProcessor struct {
	kind      string
	chain     *effects.Chain
	builtRate int
}

func newEffectProcessor(kind string) *effectProcessor {
	return &effectProcessor{kind: kind}
}

func (p *effectProcessor) ensure(sampleRate int) {
	if p.chain != nil && p.builtRate == sampleRate {
		return
	}
	switch p.kind {
	case "chorus":
		p.chain = effects.NewChain(effects.NewChorus(sampleRate, 15, 0.2, 3, 0.5, 0.5))
	case "delay":
		p.chain = effects.NewChain(effects.NewDelay(sampleRate, 250, 0.35, 0.2, 0.3))
	case "distortion":
		p.chain = effects.NewChain(effects.NewDistortion(sampleRate, 2, 0.8, 8000))
	case "compressor":
		p.chain = effects.NewChain(effects.NewCompressor(sampleRate, -18, 4, 10, 80, 6))
	case "reverb":
		p.chain = effects.NewChain(effects.NewReverb(sampleRate, 0.6, 0.5, 0.3))
	case "eq3":
		p.chain = effects.NewChain(effects.NewEQ3Band(sampleRate, 1, 1, 1, 300, 3000))
	case "eq5":
		p.chain = effects.NewChain(effects.NewEQ5Band(sampleRate))
	default:
		p.chain = effects.NewChain()
	}
	p.builtRate = sampleRate
}

func (p *effectProcessor) Process(ctx context.Context, ins, outs map[string]*wbuf.Buffer, start, stop int, sampleRate, tempo float64) error {
	outL, hasL := outs["out_00"]
	outR, hasR := outs["out_01"]
	if !hasL || !hasR || outL == nil || outR == nil {
		return nil
	}
	p.ensure(int(sampleRate))

	var inLData, inRData []float32
	if in, ok := ins["in_00"]; ok && in != nil && in.Valid() {
		inLData = in.Data()
	}
	if in, ok := ins["in_01"]; ok && in != nil && in.Valid() {
		inRData = in.Data()
	}

	n := stop - start
	if n <= 0 {
		return nil
	}
	leftOut := make([]float32, n)
	rightOut := make([]float32, n)
	for i := 0; i < n; i++ {
		var l, r float32
		if start+i < len(inLData) {
			l = inLData[start+i]
		}
		if start+i < len(inRData) {
			r = inRData[start+i]
		}
		leftOut[i], rightOut[i] = p.chain.Process(l, r)
	}
	outL.WriteRange(start, leftOut)
	outR.WriteRange(start, rightOut)
	return nil
}

// instrumentIndex recovers the channel-facing instrument index from a
// device id of the form "instrument-N", the naming convention
// internal/project's fixtures use for sample devices.
func instrumentIndex(id string) (int, bool) {
	const prefix = "instrument-"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// buildGraph turns a loaded project into a device graph (not yet prepared;
// the caller runs Graph.Prepare) plus the set of per-instrument voice pools the dispatcher's VoiceAcquirer draws
// from. Device type "sample" becomes an instrumentProcessor backed by a
// fresh voice.Pool; "gain" becomes a fixed x0.5 attenuator; "effect"
// becomes one of the named DSP chains in internal/effects; anything else
// (including "mix") becomes a sumProcessor, matching spec §9's note that
// Device/Processor/DSP/Instrument share one rendering capability and differ
// only in their per-type state.
func buildGraph(proj *project.Project) (*graph.Graph, map[int]*voice.Pool, error) {
	g := graph.New()
	pools := make(map[int]*voice.Pool)

	for _, d := range proj.Devices {
		dev := &graph.Device{ID: d.ID, InPorts: d.InPorts, OutPorts: d.OutPorts}
		switch d.Type {
		case "sample":
			idx, ok := instrumentIndex(d.ID)
			if !ok {
				return nil, nil, fmt.Errorf("kunquat: sample device %q must be named \"instrument-N\"", d.ID)
			}
			pool := voice.NewPool(voicePoolSize)
			pools[idx] = pool
			dev.Proc = newInstrumentProcessor(pool)
		case "gain":
			dev.Proc = gainProcessor{Gain: 0.5}
		case "effect":
			dev.Proc = newEffectProcessor(d.Effect)
		default:
			dev.Proc = sumProcessor{}
		}
		g.AddDevice(dev)
	}

	for _, c := range proj.Connections {
		g.Connect(
			graph.Port{Device: c.FromDevice, Name: c.FromPort, Dir: graph.PortOut},
			graph.Port{Device: c.ToDevice, Name: c.ToPort, Dir: graph.PortIn},
		)
	}

	return g, pools, nil
}
