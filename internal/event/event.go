// Package event implements Kunquat's closed event taxonomy: a fixed
// catalogue of event kinds grouped by category, name-to-kind and
// parameter-type lookup tables, and a parser that turns a [name, argument]
// description into a type-checked Event ready for dispatch.
//
// Grounded on internal/mml/types.go's closed EventType enum + flat Event
// struct idiom, generalized from MML's dozen tracker commands into the
// full channel/master/voice/processor/control/general catalogue of spec
// §4.9.
package event

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Category groups event kinds by the component that owns their semantics.
type Category int

const (
	CategoryControl Category = iota
	CategoryGeneral
	CategoryMaster
	CategoryChannel
	CategoryProcessor
	CategoryVoice
)

func (c Category) String() string {
	switch c {
	case CategoryControl:
		return "control"
	case CategoryGeneral:
		return "general"
	case CategoryMaster:
		return "master"
	case CategoryChannel:
		return "channel"
	case CategoryProcessor:
		return "processor"
	case CategoryVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// ValueType is the parameter-type tag of an event.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeTstamp
	TypeString
	TypeReal
	TypePatternLoc
	TypeRealtime
)

// Kind is a closed numeric identifier for one event name, stable for the
// lifetime of the catalogue (used as a direct index into the descriptor
// table below; internal/dispatch switches on it).
type Kind int

// The closed catalogue. Names are short Kunquat-style mnemonics ("mt",
// "c.i", "cn+", "p.set"), modelled on the original source's Event_names
// table.
const (
	// control
	KindIf Kind = iota
	KindElse
	KindEndIf
	// general
	KindSignal
	KindCall
	// master
	KindSetTempo
	KindSlideTempo
	KindSlideTempoLength
	KindSetGlobalVolume
	KindSlideGlobalVolume
	KindSlideGlobalVolumeLength
	KindJump
	KindPatternDelay
	// channel
	KindSetInstrument
	KindSetGenerator
	KindSetEffect
	KindSetDSP
	KindNoteOn
	KindNoteOff
	KindHit
	// processor (parameter set by type; one generic kind plus typed params
	// are distinguished by the parameter name's registered ValueType)
	KindSetParam
	// voice-scope variants of a subset of channel/processor events
	KindVoiceSetParam
	KindVoiceNoteOff

	kindCount
)

// descriptor binds a Kind to its declared category and parameter type.
type descriptor struct {
	name     string
	category Category
	ptype    ValueType
}

var catalogue = map[string]Kind{}
var descriptors = [kindCount]descriptor{
	KindIf:                      {"if", CategoryControl, TypeBool},
	KindElse:                    {"else", CategoryControl, TypeNone},
	KindEndIf:                   {"end_if", CategoryControl, TypeNone},
	KindSignal:                  {"signal", CategoryGeneral, TypeString},
	KindCall:                    {"call", CategoryGeneral, TypeString},
	KindSetTempo:                {"mt", CategoryMaster, TypeFloat},
	KindSlideTempo:              {"mts", CategoryMaster, TypeFloat},
	KindSlideTempoLength:        {"mtsl", CategoryMaster, TypeTstamp},
	KindSetGlobalVolume:         {"mv", CategoryMaster, TypeFloat},
	KindSlideGlobalVolume:       {"mvs", CategoryMaster, TypeFloat},
	KindSlideGlobalVolumeLength: {"mvsl", CategoryMaster, TypeTstamp},
	KindJump:                    {"mj", CategoryMaster, TypePatternLoc},
	KindPatternDelay:            {"md", CategoryMaster, TypeTstamp},
	KindSetInstrument:           {"c.i", CategoryChannel, TypeInt},
	KindSetGenerator:            {"c.g", CategoryChannel, TypeInt},
	KindSetEffect:               {"c.e", CategoryChannel, TypeInt},
	KindSetDSP:                  {"c.d", CategoryChannel, TypeInt},
	KindNoteOn:                  {"cn+", CategoryChannel, TypeReal},
	KindNoteOff:                 {"cn-", CategoryChannel, TypeNone},
	KindHit:                     {"ch", CategoryChannel, TypeInt},
	KindSetParam:                {"p.set", CategoryProcessor, TypeFloat},
	KindVoiceSetParam:           {"v.set", CategoryVoice, TypeFloat},
	KindVoiceNoteOff:            {"vn-", CategoryVoice, TypeNone},
}

func init() {
	for k, d := range descriptors {
		if d.name == "" {
			continue
		}
		catalogue[d.name] = Kind(k)
	}
}

// Lookup resolves an event name to its Kind. ok is false for unrecognized
// names (a format error at load time per spec §7).
func Lookup(name string) (Kind, bool) {
	k, ok := catalogue[name]
	return k, ok
}

// Category returns the category of k.
func (k Kind) Category() Category { return descriptors[k].category }

// ParamType returns the declared parameter type of k.
func (k Kind) ParamType() ValueType { return descriptors[k].ptype }

// Name returns the registered name of k.
func (k Kind) Name() string { return descriptors[k].name }

// Value holds a typed event argument. Exactly one field is meaningful,
// selected by Type.
type Value struct {
	Type ValueType
	B    bool
	I    int64
	F    float64
	S    string
	T    tstamp.Tstamp
}

// Event is a fully parsed, type-checked event ready for dispatch.
type Event struct {
	Kind  Kind
	Value Value
}

// Parse validates a [name, argument-already-decoded] pair against the
// catalogue and produces an Event. Argument decoding (JSON-ish literal to
// Value) is the caller's responsibility (internal/bind / internal/pattern
// own that per their own wire formats); Parse only checks the name is
// known and the value's Type matches what the catalogue declares.
func Parse(name string, arg Value) (Event, error) {
	k, ok := Lookup(name)
	if !ok {
		return Event{}, fmt.Errorf("event: unknown name %q", name)
	}
	want := k.ParamType()
	if want != TypeNone && arg.Type != want {
		return Event{}, fmt.Errorf("event: %q expects %v argument, got %v", name, want, arg.Type)
	}
	return Event{Kind: k, Value: arg}, nil
}
