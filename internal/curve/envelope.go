// Package curve implements the three musical-time modulation primitives
// shared by scale, control-var and voice-renderer code: piecewise-linear
// envelopes with loop points, depth-delayed sinusoidal LFOs, and linear
// sliders over a frame or Tstamp length. All three re-derive their frame
// counts when sample rate or tempo changes, preserving remaining musical
// time, per spec §4.3.
package curve

import (
	"math"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Node is one (x, y) point of a piecewise-linear envelope.
type Node struct {
	X, Y float64
}

// Envelope is a sorted array of nodes with up to two optional loop marks.
// Grounded on internal/sequencer/sequencer.go's filterEnvelope state
// machine (attack/decay/sustain/release counters), generalized here into an
// arbitrary node list with explicit loop-start/loop-end marks instead of a
// fixed four-stage ADSR shape.
type Envelope struct {
	Nodes     []Node
	LoopStart int // node index, -1 if unset
	LoopEnd   int // node index, -1 if unset
}

// NewEnvelope builds an Envelope from nodes already sorted by X. Loop marks
// default to unset (-1).
func NewEnvelope(nodes []Node) *Envelope {
	return &Envelope{Nodes: nodes, LoopStart: -1, LoopEnd: -1}
}

// SetLoop sets both loop marks by node index. Pass -1, -1 to disable
// looping.
func (e *Envelope) SetLoop(start, end int) {
	e.LoopStart = start
	e.LoopEnd = end
}

func (e *Envelope) hasLoop() bool {
	return e.LoopStart >= 0 && e.LoopEnd >= 0 &&
		e.LoopStart < len(e.Nodes) && e.LoopEnd < len(e.Nodes) &&
		e.LoopStart < e.LoopEnd
}

// ValueAt performs piecewise-linear interpolation at x. When both loop marks
// are set and x exceeds the loop-end node's X, x is wrapped into
// [loopStartX, loopEndX); otherwise x beyond the last node clamps to the
// last node's Y. ValueAt is continuous everywhere and equals a node's Y
// exactly at that node's X, per spec §8.
func (e *Envelope) ValueAt(x float64) float64 {
	if len(e.Nodes) == 0 {
		return 0
	}
	if len(e.Nodes) == 1 {
		return e.Nodes[0].Y
	}
	if e.hasLoop() {
		loopStartX := e.Nodes[e.LoopStart].X
		loopEndX := e.Nodes[e.LoopEnd].X
		if x > loopEndX {
			span := loopEndX - loopStartX
			if span > 0 {
				x = loopStartX + mod(x-loopStartX, span)
			} else {
				x = loopStartX
			}
		}
	}
	if x <= e.Nodes[0].X {
		return e.Nodes[0].Y
	}
	last := len(e.Nodes) - 1
	if x >= e.Nodes[last].X {
		return e.Nodes[last].Y
	}
	idx := e.findSegment(x)
	a, b := e.Nodes[idx], e.Nodes[idx+1]
	if b.X == a.X {
		return a.Y
	}
	frac := (x - a.X) / (b.X - a.X)
	return a.Y + frac*(b.Y-a.Y)
}

func (e *Envelope) findSegment(x float64) int {
	lo, hi := 0, len(e.Nodes)-2
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if e.Nodes[mid].X <= x {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func mod(a, m float64) float64 {
	r := a - m*float64(int64(a/m))
	if r < 0 {
		r += m
	}
	return r
}

// State is a streaming cursor over an Envelope: the current x position and
// a finished flag set once x has passed the final node with no loop active.
// The lastIdx field is not updated: every Step evaluates through ValueAt,
// which runs its binary search over the nodes again.
type State struct {
	Env       *Envelope
	X         float64
	lastIdx   int
	Finished  bool
}

// NewState creates a streaming cursor starting at x=0.
func NewState(env *Envelope) *State {
	return &State{Env: env}
}

// Step advances the cursor by dx and returns the interpolated value at the
// new position.
func (s *State) Step(dx float64) float64 {
	s.X += dx
	v := s.Env.ValueAt(s.X)
	if !s.Env.hasLoop() && len(s.Env.Nodes) > 0 && s.X >= s.Env.Nodes[len(s.Env.Nodes)-1].X {
		s.Finished = true
	}
	return v
}

// Reset returns the cursor to x=0 and clears the finished flag.
func (s *State) Reset() {
	s.X = 0
	s.Finished = false
}

// LFO is a sinusoidal oscillator with independently sliding speed and
// depth, plus a depth-delay that ramps depth from 0 to target over a
// musical-time length. Grounded on internal/lfo/lfo.go's phase-accumulator
// shape, generalized from a 4-waveform unit LFO into the sinusoidal,
// dB/cents-scaled modulator spec §4.3 requires.
type LFO struct {
	speed        Slider // current oscillation speed, Hz
	depth        Slider // current depth target
	phase        float64
	delayLen     float64 // musical-time length (in frames, pre-converted) of the depth-delay ramp
	delayElapsed float64
	cents        bool // true: exp2(sin*depth/1200); false: exp2(sin*depth/6) (dB)
}

// NewLFO creates an LFO. cents selects the cents-scaled modulation factor
// (used for pitch-ish quantities); otherwise the dB-scaled factor is used
// (used for amplitude/filter quantities).
func NewLFO(cents bool) *LFO {
	return &LFO{cents: cents}
}

// SetSpeed sets the oscillation speed in Hz, optionally sliding to it over
// slideFrames.
func (l *LFO) SetSpeed(hz float64, slideFrames int) {
	l.speed.SlideTo(hz, slideFrames)
}

// SetDepth sets the target modulation depth, optionally sliding to it over
// slideFrames.
func (l *LFO) SetDepth(depth float64, slideFrames int) {
	l.depth.SlideTo(depth, slideFrames)
}

// SetDelay configures the depth-delay ramp length in frames. A zero length
// disables the delay (depth applies immediately).
func (l *LFO) SetDelay(frames float64) {
	l.delayLen = frames
	l.delayElapsed = 0
}

// Reset zeros phase and delay progress.
func (l *LFO) Reset() {
	l.phase = 0
	l.delayElapsed = 0
}

// Step advances the LFO by one frame at the given sample rate and returns
// the multiplicative modulation factor for that frame.
func (l *LFO) Step(sampleRate float64) float64 {
	speed := l.speed.Step()
	depthTarget := l.depth.Step()

	depth := depthTarget
	if l.delayLen > 0 {
		if l.delayElapsed < l.delayLen {
			depth = depthTarget * (l.delayElapsed / l.delayLen)
			l.delayElapsed++
		}
	}

	if speed == 0 || depth == 0 || sampleRate <= 0 {
		// No modulation this frame; the phase does not advance either.
		return 1.0
	}

	s := math.Sin(l.phase * twoPi)
	l.phase += speed / sampleRate
	for l.phase >= 1.0 {
		l.phase -= 1.0
	}
	if l.cents {
		return math.Exp2(s * depth / 1200.0)
	}
	return math.Exp2(s * depth / 6.0)
}

const twoPi = 2 * math.Pi

// Slider linearly interpolates over N frames (or a musical-time length
// converted to frames by the caller) toward a target value. Once Step()
// crosses the target, the slide ends and successive calls return the
// target.
type Slider struct {
	current  float64
	target   float64
	step     float64
	framesLeft int
}

// Value returns the current value without advancing the slide.
func (s *Slider) Value() float64 { return s.current }

// Set immediately sets the current value and target, with no slide in
// progress.
func (s *Slider) Set(v float64) {
	s.current = v
	s.target = v
	s.framesLeft = 0
}

// SlideTo begins a linear slide from the current value to target over
// frames frames. frames <= 0 sets the value immediately.
func (s *Slider) SlideTo(target float64, frames int) {
	if frames <= 0 {
		s.Set(target)
		return
	}
	s.target = target
	s.framesLeft = frames
	s.step = (target - s.current) / float64(frames)
}

// SlideToOverTime begins a linear slide over a musical-time length, given
// the current tempo and sample rate to convert to a frame count.
func (s *Slider) SlideToOverTime(target float64, length tstamp.Tstamp, tempo float64, sampleRate int64) {
	frames := int(tstamp.ToFrames(length, tempo, sampleRate))
	s.SlideTo(target, frames)
}

// Step advances the slide by one frame and returns the new current value.
func (s *Slider) Step() float64 {
	if s.framesLeft <= 0 {
		return s.current
	}
	s.current += s.step
	s.framesLeft--
	if s.framesLeft <= 0 {
		s.current = s.target
	}
	return s.current
}

// Active reports whether a slide is in progress.
func (s *Slider) Active() bool { return s.framesLeft > 0 }

// Retarget re-derives the remaining slide length in frames (e.g. after a
// tempo or sample-rate change) while preserving the musical-time length
// already specified, by rescaling the number of frames left proportionally
// to the ratio of new to old frames-per-beat. Callers that track slide
// lengths in Tstamp form should prefer recomputing via SlideToOverTime with
// the remaining musical-time length instead; Retarget is provided for
// frame-only sliders (e.g. sample-accurate crossfades) that only need a
// scale factor.
func (s *Slider) Retarget(scale float64) {
	if s.framesLeft <= 0 || scale <= 0 {
		return
	}
	remaining := float64(s.framesLeft) * scale
	s.framesLeft = int(remaining)
	if s.framesLeft <= 0 {
		s.current = s.target
		return
	}
	s.step = (s.target - s.current) / float64(s.framesLeft)
}
