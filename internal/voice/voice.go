// Package voice implements the sample-based voice renderer (spec §4.5) and
// the bounded voice pool with priority stealing (spec §4.6).
//
// Grounded on internal/fm/engine.go's per-voice operator/envState state
// machine and internal/sequencer/sequencer.go's note-off/voice bookkeeping,
// generalized into Kunquat's five-stage pitch/force/filter/sample/pan
// pipeline over a real sample-playback voice instead of an FM operator
// stack.
package voice

import (
	"github.com/kunquat/kunquat-go/internal/curve"
)

// Priority classifies a voice for stealing purposes, per spec §3.
type Priority int

const (
	PriorityInactive Priority = iota
	PriorityBackground
	PriorityForeground
)

// LoopMode selects how sample playback wraps at the loop points, spec §4.5.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopUnidirectional
	LoopBidirectional
)

// Sample is a decoded sample's frame data and loop metadata. Codec decoding
// (WavPack) is out of scope per spec §1; this struct is what the external
// loader would populate.
type Sample struct {
	Frames     []float64 // mono frame data, already decoded
	MiddleTone int       // the note whose pitch matches SampleRate/MiddleFreq
	MiddleFreq float64   // Hz; reference pitch encoded in the sample
	SampleRate float64   // Hz, the sample's own recording rate
	Loop       LoopMode
	LoopStart  int
	LoopEnd    int // exclusive
}

// ID packs a pool slot and a monotonic per-slot counter, per spec §3:
// (pool_slot << 32) | monotonic_counter, used to detect stale references
// after the pool reclaims a slot.
type ID uint64

func makeID(slot int, counter uint64) ID {
	return ID(uint64(uint32(slot))<<32 | (counter & 0xffffffff))
}

// Slot extracts the pool slot index encoded in an ID.
func (id ID) Slot() int { return int(uint32(id >> 32)) }

// Params holds the per-voice parameter sliders, LFOs and envelopes set up
// at note-on time by the event dispatcher (C13) before the voice starts
// rendering. Zero-value Params render silence (no envelopes, full-range
// pan, no pitch offset) so a freshly acquired voice is always safe to touch
// before the caller configures it.
type Params struct {
	BasePitchHz float64

	PitchSlider  curve.Slider
	VibratoLFO   *curve.LFO
	Arpeggio     []float64 // semitone offsets cycling at ArpeggioRate Hz; empty = no arpeggio
	ArpeggioRate float64

	ForceSlider    curve.Slider
	GlobalForce    float64
	TremoloLFO     *curve.LFO
	ForceEnvelope  *curve.Envelope
	ForceEnvScale  float64 // exponent in (pitch/center)^scale
	ForceEnvCenter float64
	ReleaseEnvelope *curve.Envelope
	SustainPedal    float64 // 0..1, scales the release envelope's effect

	FilterCutoffSlider curve.Slider
	FilterResonance    float64
	AutowahLFO         *curve.LFO
	FilterEnvelope     *curve.Envelope // force -> filter cutoff offset

	PanSlider      curve.Slider
	PitchPanEnvelope *curve.Envelope

	Sample *Sample
}

// Voice is one playing note bound to a target processor. Reused across
// acquisitions; each acquisition by the Pool clears all per-note state back
// to defaults.
type Voice struct {
	id       ID
	counter  uint64
	priority Priority

	ChannelID         uint32
	TargetProcessorID uint32

	Params Params

	noteOn  bool
	finished bool

	// pitch stage
	pitchEnvState  curve.State
	arpPhase       float64

	// force stage
	forceEnvState  curve.State
	releaseEnvState curve.State
	releaseEnvActive bool

	// filter stage
	filterState  biquadState
	filterFading bool
	filterFadePrev biquadState
	filterFadeFrame int
	filterFadeFrames int
	lastCutoff   float64
	lastResonance float64

	// sample playback
	samplePos     float64
	sampleDir     int // +1 or -1, used for bidirectional looping
	releaseRampFrames int
	releaseRampLeft   int
	releaseRampFrom   float64

	// pan stage
	panEnvState curve.State
}

const defaultReleaseRampFrames = 200
const filterCrossfadeFrames = 200

func newVoice() *Voice {
	v := &Voice{}
	v.resetRuntime()
	return v
}

func (v *Voice) resetRuntime() {
	v.noteOn = false
	v.finished = false
	v.pitchEnvState = curve.State{}
	v.arpPhase = 0
	v.forceEnvState = curve.State{}
	v.releaseEnvState = curve.State{}
	v.releaseEnvActive = false
	v.filterState = biquadState{}
	v.filterFading = false
	v.filterFadeFrame = 0
	v.filterFadeFrames = 0
	v.lastCutoff = 0
	v.lastResonance = 0
	v.samplePos = 0
	v.sampleDir = 1
	v.releaseRampFrames = defaultReleaseRampFrames
	v.releaseRampLeft = 0
	v.releaseRampFrom = 0
	v.panEnvState = curve.State{}
}

// ID returns the voice's current identity token.
func (v *Voice) ID() ID { return v.id }

// Priority returns the voice's current stealing priority.
func (v *Voice) Priority() Priority { return v.priority }

// NoteOff flags the voice to begin its release. The renderer applies the
// release envelope in its force stage when one is configured, and a
// fallback linear ramp otherwise, per spec §4.5 step 4.
func (v *Voice) NoteOff() {
	v.noteOn = false
	if v.Params.ReleaseEnvelope != nil {
		v.releaseEnvActive = true
		v.releaseEnvState.Reset()
	} else {
		v.startRelease()
	}
}

// Finished reports whether the voice has completed release/decay and is
// ready to be reclaimed.
func (v *Voice) Finished() bool { return v.finished }

// Active reports whether the voice is still sounding (not inactive/not
// finished).
func (v *Voice) Active() bool { return v.priority != PriorityInactive && !v.finished }
