// Package expr implements the small stack-based expression evaluator used
// by bind predicates (internal/bind) and control-var target bindings
// (internal/controlvar), per spec §9 design note: types
// {bool, int, float, tstamp, real} and operators
// {+, -, *, /, <, >, =, !=, and, or, not}. Parsing is separate from
// evaluation so a parsed expression can be cached and evaluated many times
// against different environments (parse-once-evaluate-many).
//
// Grounded on internal/mml/parser.go's manual recursive-descent/tokenizer
// style; informed by Conceptual-Machines-magda-api's arranger_dsl_parser.go
// as an additional pack reference for structuring a small expression
// grammar over strings.
package expr

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Kind is the runtime type tag of a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindTstamp
	KindReal // an unbounded real number distinct from Float only by provenance; arithmetic on a Real yields a Float
)

// Value is a tagged union over the evaluator's supported types.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Tstamp tstamp.Tstamp
}

func BoolValue(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value        { return Value{Kind: KindFloat, Float: f} }
func RealValue(f float64) Value         { return Value{Kind: KindReal, Float: f} }
func TstampValue(t tstamp.Tstamp) Value { return Value{Kind: KindTstamp, Tstamp: t} }

// AsFloat coerces any numeric Value to float64; tstamp converts via its
// beat-valued float approximation (display/arithmetic convenience, not used
// on the audio-rate path). Bool converts to 0/1 per spec §4.11 conversion
// rules.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindInt:
		return float64(v.Int)
	case KindFloat, KindReal:
		return v.Float
	case KindTstamp:
		return v.Tstamp.ToFloat()
	}
	return 0
}

// AsBool coerces a Value to bool: zero numeric values are false, non-zero
// true; KindBool passes through.
func (v Value) AsBool() bool {
	if v.Kind == KindBool {
		return v.Bool
	}
	return v.AsFloat() != 0
}

// AsInt truncates a Value toward zero.
func (v Value) AsInt() int64 {
	if v.Kind == KindInt {
		return v.Int
	}
	if v.Kind == KindBool {
		if v.Bool {
			return 1
		}
		return 0
	}
	return int64(v.AsFloat())
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat, KindReal:
		return fmt.Sprintf("%g", v.Float)
	case KindTstamp:
		return v.Tstamp.String()
	}
	return "<invalid>"
}

// Equal reports value equality, comparing numerically across numeric kinds
// (so `1 = 1.0` holds) and structurally for tstamp.
func Equal(a, b Value) bool {
	if a.Kind == KindTstamp || b.Kind == KindTstamp {
		if a.Kind != KindTstamp || b.Kind != KindTstamp {
			return false
		}
		return a.Tstamp.Cmp(b.Tstamp) == 0
	}
	if a.Kind == KindBool || b.Kind == KindBool {
		return a.AsBool() == b.AsBool()
	}
	return a.AsFloat() == b.AsFloat()
}

// Compare orders two numeric or tstamp values; returns an error when either
// operand is a bool (ordering is defined only for numeric and tstamp
// types).
func Compare(a, b Value) (int, error) {
	if a.Kind == KindTstamp && b.Kind == KindTstamp {
		return a.Tstamp.Cmp(b.Tstamp), nil
	}
	if a.Kind == KindBool || b.Kind == KindBool {
		return 0, fmt.Errorf("expr: cannot order bool values")
	}
	af, bf := a.AsFloat(), b.AsFloat()
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}
