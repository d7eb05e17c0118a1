// Package dispatch implements the event handler (spec §4.13): the single
// point every event — player-triggered or bind-cascaded — passes through.
// It applies control-flow, channel and voice events itself through a switch
// on the event category, forwards master, general and processor events to a
// Sink, and walks the bind map's cascades with channel-offset wraparound.
//
// Grounded on player.go's category-switch idiom for routing playback
// events to concrete subsystems, and on
// original_source/src/lib/Event_handler.c's Event_handler_trigger /
// Event_handler_act pair — particularly its channel-offset modulo
// KQT_COLUMNS_MAX walk over a cascade's bound events and its policy of
// silently doing nothing when a target device or name does not resolve,
// rather than erroring the whole trigger.
package dispatch

import (
	"github.com/kunquat/kunquat-go/internal/bind"
	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/expr"
	"github.com/kunquat/kunquat-go/internal/tstamp"
	"github.com/kunquat/kunquat-go/internal/voice"
)

// MaxChannels bounds the channel-offset wraparound used by bind cascades,
// mirroring the original's fixed KQT_COLUMNS_MAX.
const MaxChannels = 64

// ChannelState is one channel's addressable runtime: which instrument,
// generator, effect and DSP it currently targets, and its active voice for
// voice-scoped events.
type ChannelState struct {
	Instrument int
	Generator  int
	Effect     int
	DSP        int

	activeVoice voice.ID
	hasVoice    bool
}

// VoiceAcquirer creates and releases notes. Implemented by the instrument
// layer (a voice.Pool per instrument, typically); kept as an interface here
// so dispatch does not import a concrete instrument type.
type VoiceAcquirer interface {
	NoteOn(channel, instrument int, pitchHz float64) (voice.ID, bool)
	NoteOff(id voice.ID)
}

// Sink receives a non-control event dispatch has decided to actually apply,
// after active-name resolution. A nil Sink makes Trigger a no-op for
// anything but control-flow/channel/voice bookkeeping — useful in tests
// that only care about bind cascading.
type Sink interface {
	Apply(channel int, ev event.Event) error
}

// Dispatcher is the central event handler for one playback session.
type Dispatcher struct {
	channels []ChannelState
	binds    *bind.Map
	cache    *bind.EventCache
	voices   VoiceAcquirer
	sink     Sink

	ifStack []bool // "events enabled" flags, pushed by if/else/end_if
}

// New creates a Dispatcher for nChannels channels. binds may be nil (no
// cascading); voices and sink may be nil for tests that only exercise
// control flow or cascading.
func New(nChannels int, binds *bind.Map, cache *bind.EventCache, voices VoiceAcquirer, sink Sink) *Dispatcher {
	if cache == nil {
		cache = bind.NewCache(nil)
	}
	return &Dispatcher{
		channels: make([]ChannelState, nChannels),
		binds:    binds,
		cache:    cache,
		voices:   voices,
		sink:     sink,
	}
}

// Channel returns a read-only view of channel i's current active-device
// state, or the zero ChannelState if out of range.
func (d *Dispatcher) Channel(i int) ChannelState {
	if i < 0 || i >= len(d.channels) {
		return ChannelState{}
	}
	return d.channels[i]
}

// Trigger fires ev on channel, applying control-flow/channel/voice
// semantics directly and forwarding anything else to the Sink, then walks
// any bind cascades bound to ev's name. Per spec §4.13, a missing target
// channel, device or name is a silent no-op, not an error — only predicate
// or target-expression evaluation failures, and errors returned by the
// Sink for events forwarded from Trigger itself, propagate.
func (d *Dispatcher) Trigger(channel int, ev event.Event) error {
	if channel < 0 || channel >= len(d.channels) {
		return nil
	}
	if !d.eventsEnabled() && !isControlFlow(ev.Kind) {
		return nil
	}

	d.cache.Set(ev.Kind.Name(), toExprValue(ev.Value))

	switch ev.Kind.Category() {
	case event.CategoryControl:
		d.applyControlFlow(ev)
	case event.CategoryChannel:
		d.applyChannel(channel, ev)
	case event.CategoryVoice:
		d.applyVoice(channel, ev)
	default:
		if d.sink != nil {
			if err := d.sink.Apply(channel, ev); err != nil {
				return err
			}
		}
	}

	return d.cascade(channel, ev)
}

func isControlFlow(k event.Kind) bool {
	return k == event.KindIf || k == event.KindElse || k == event.KindEndIf
}

func (d *Dispatcher) eventsEnabled() bool {
	if len(d.ifStack) == 0 {
		return true
	}
	return d.ifStack[len(d.ifStack)-1]
}

func (d *Dispatcher) applyControlFlow(ev event.Event) {
	switch ev.Kind {
	case event.KindIf:
		d.ifStack = append(d.ifStack, ev.Value.B)
	case event.KindElse:
		if n := len(d.ifStack); n > 0 {
			d.ifStack[n-1] = !d.ifStack[n-1]
		}
	case event.KindEndIf:
		if n := len(d.ifStack); n > 0 {
			d.ifStack = d.ifStack[:n-1]
		}
	}
}

func (d *Dispatcher) applyChannel(channel int, ev event.Event) {
	ch := &d.channels[channel]
	switch ev.Kind {
	case event.KindSetInstrument:
		ch.Instrument = int(ev.Value.I)
	case event.KindSetGenerator:
		ch.Generator = int(ev.Value.I)
	case event.KindSetEffect:
		ch.Effect = int(ev.Value.I)
	case event.KindSetDSP:
		ch.DSP = int(ev.Value.I)
	case event.KindNoteOn:
		if d.voices != nil {
			if id, ok := d.voices.NoteOn(channel, ch.Instrument, ev.Value.F); ok {
				ch.activeVoice = id
				ch.hasVoice = true
			}
		}
	case event.KindNoteOff, event.KindHit:
		if d.voices != nil && ch.hasVoice {
			d.voices.NoteOff(ch.activeVoice)
			ch.hasVoice = false
		}
	default:
		if d.sink != nil {
			d.sink.Apply(channel, ev)
		}
	}
}

// applyVoice handles events scoped to the channel's currently active voice
// (spec §4.9's voice category). A channel with no active voice silently
// drops these, per the handler's missing-target policy.
func (d *Dispatcher) applyVoice(channel int, ev event.Event) {
	ch := &d.channels[channel]
	if !ch.hasVoice {
		return
	}
	switch ev.Kind {
	case event.KindVoiceNoteOff:
		if d.voices != nil {
			d.voices.NoteOff(ch.activeVoice)
			ch.hasVoice = false
		}
	default:
		if d.sink != nil {
			d.sink.Apply(channel, ev)
		}
	}
}

// cascade walks every bind cascade triggered by ev's name, firing each
// target on its channel-offset-adjusted channel (spec §4.13, grounded on
// Event_handler_act's "(index + bound->ch_offset + MAX) % MAX" walk).
// Target.Arg is parsed once by the bind builder (internal/bind.Cascade
// carries expr.Node, not raw text) so cascading never reparses on the hot
// path; here it is evaluated against the firing event's cache snapshot.
func (d *Dispatcher) cascade(channel int, ev event.Event) error {
	if d.binds == nil {
		return nil
	}
	env := d.cache.WithFiring(toExprValue(ev.Value))
	matches, err := d.binds.Matches(ev.Kind.Name(), env)
	if err != nil {
		return err
	}
	for _, c := range matches {
		for _, t := range c.Targets {
			k, ok := event.Lookup(t.EventName)
			if !ok {
				continue // unknown target name: silent no-op
			}
			val := event.Value{Type: k.ParamType()}
			if t.Arg != nil {
				result, err := t.Arg.Eval(env)
				if err != nil {
					return err
				}
				val = fromExprValue(k.ParamType(), result)
			}
			target := event.Event{Kind: k, Value: val}
			targetChannel := (((channel+t.ChannelOffset)%MaxChannels)+MaxChannels) % MaxChannels
			if targetChannel >= len(d.channels) {
				continue
			}
			if err := d.Trigger(targetChannel, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func toExprValue(v event.Value) expr.Value {
	switch v.Type {
	case event.TypeBool:
		return expr.BoolValue(v.B)
	case event.TypeInt, event.TypePatternLoc:
		return expr.IntValue(v.I)
	case event.TypeFloat:
		return expr.FloatValue(v.F)
	case event.TypeReal:
		return expr.RealValue(v.F)
	case event.TypeTstamp, event.TypeRealtime:
		return expr.TstampValue(v.T)
	default:
		return expr.Value{}
	}
}

func fromExprValue(ptype event.ValueType, v expr.Value) event.Value {
	switch ptype {
	case event.TypeBool:
		return event.Value{Type: ptype, B: v.AsBool()}
	case event.TypeInt, event.TypePatternLoc:
		return event.Value{Type: ptype, I: v.AsInt()}
	case event.TypeFloat, event.TypeReal:
		return event.Value{Type: ptype, F: v.AsFloat()}
	case event.TypeTstamp, event.TypeRealtime:
		if v.Kind == expr.KindTstamp {
			return event.Value{Type: ptype, T: v.Tstamp}
		}
		return event.Value{Type: ptype, T: tstamp.FromBeats(int64(v.AsFloat()))}
	default:
		return event.Value{Type: ptype}
	}
}
