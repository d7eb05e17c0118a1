package project

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/bind"
	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/expr"
	"github.com/kunquat/kunquat-go/internal/pattern"
	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// BuildPattern turns a PatternDef into a playable pattern.Pattern, decoding
// each EventDef's literal Arg against the event name's declared parameter
// type.
func BuildPattern(def *PatternDef) (*pattern.Pattern, error) {
	length := tstamp.New(def.LengthBeats, def.LengthRem)
	pat := pattern.NewPattern(length, len(def.Channels))

	if err := fillColumn(pat.Global, def.Global); err != nil {
		return nil, fmt.Errorf("project: pattern %q global column: %w", def.ID, err)
	}
	for i, col := range def.Channels {
		if err := fillColumn(pat.Channels[i], col); err != nil {
			return nil, fmt.Errorf("project: pattern %q channel %d: %w", def.ID, i, err)
		}
	}
	return pat, nil
}

func fillColumn(col *pattern.Column, def ColumnDef) error {
	for _, e := range def.Events {
		k, ok := event.Lookup(e.Name)
		if !ok {
			return fmt.Errorf("unknown event name %q", e.Name)
		}
		val, err := decodeArg(k.ParamType(), e.Arg)
		if err != nil {
			return fmt.Errorf("event %q: %w", e.Name, err)
		}
		col.Insert(tstamp.New(e.Beats, e.Rem), event.Event{Kind: k, Value: val})
	}
	return nil
}

func decodeArg(ptype event.ValueType, raw interface{}) (event.Value, error) {
	if raw == nil {
		return event.Value{Type: ptype}, nil
	}
	switch ptype {
	case event.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return event.Value{}, fmt.Errorf("expected bool argument, got %T", raw)
		}
		return event.Value{Type: ptype, B: b}, nil
	case event.TypeInt, event.TypePatternLoc:
		i, err := toInt64(raw)
		if err != nil {
			return event.Value{}, err
		}
		return event.Value{Type: ptype, I: i}, nil
	case event.TypeFloat, event.TypeReal:
		f, err := toFloat64(raw)
		if err != nil {
			return event.Value{}, err
		}
		return event.Value{Type: ptype, F: f}, nil
	case event.TypeString:
		s, ok := raw.(string)
		if !ok {
			return event.Value{}, fmt.Errorf("expected string argument, got %T", raw)
		}
		return event.Value{Type: ptype, S: s}, nil
	case event.TypeTstamp, event.TypeRealtime:
		f, err := toFloat64(raw)
		if err != nil {
			return event.Value{}, err
		}
		return event.Value{Type: ptype, T: tstamp.FromBeats(int64(f))}, nil
	default:
		return event.Value{Type: ptype}, nil
	}
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer argument, got %T", raw)
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected numeric argument, got %T", raw)
	}
}

// BuildBinds compiles every BindDef into a bind.Map, parsing each
// cascade's constraint and target-argument expressions exactly once.
func BuildBinds(defs []BindDef) (*bind.Map, error) {
	b := bind.NewBuilder()
	for _, d := range defs {
		for _, c := range d.Cascades {
			cascade, err := buildCascade(c)
			if err != nil {
				return nil, fmt.Errorf("project: bind %q: %w", d.TriggerName, err)
			}
			b.Add(d.TriggerName, cascade)
		}
	}
	return b.Build()
}

func buildCascade(def BindCascadeDef) (bind.Cascade, error) {
	var constraint expr.Node
	if def.Constraint != "" {
		n, err := expr.Parse(def.Constraint)
		if err != nil {
			return bind.Cascade{}, fmt.Errorf("constraint: %w", err)
		}
		constraint = n
	}
	targets := make([]bind.Target, 0, len(def.Targets))
	for _, t := range def.Targets {
		var arg expr.Node
		if t.Arg != "" {
			n, err := expr.Parse(t.Arg)
			if err != nil {
				return bind.Cascade{}, fmt.Errorf("target %q arg: %w", t.EventName, err)
			}
			arg = n
		}
		targets = append(targets, bind.Target{
			EventName:     t.EventName,
			Arg:           arg,
			ChannelOffset: t.ChannelOffset,
		})
	}
	return bind.Cascade{Constraint: constraint, Targets: targets}, nil
}
