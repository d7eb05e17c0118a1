// Package bind implements the event bind map (spec §4.10): a table from a
// trigger event name to a list of constrained cascades, each cascade firing
// zero or more target events when its predicate is satisfied against the
// current event cache. Evaluated event names may in turn be bound, so a
// bind map is rejected at construction if its trigger graph is cyclic.
//
// Grounded on original_source/src/lib/Bind.c's Bind/Cblist/Target_event
// shapes (Bind_dfs's three-colour source_state walk in particular), adapted
// from its AAtree/linked-list-of-linked-lists layout into plain Go maps and
// slices, and on internal/mml/parser.go's manual-parsing idiom for the
// predicate expressions themselves (delegated to internal/expr).
package bind

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/expr"
)

// Target is one event a cascade fires when its constraints hold. Arg is
// parsed once at build time (by the loader, via expr.Parse) rather than
// re-parsed on every fire; nil means the target fires with the zero value
// of its declared parameter type. ChannelOffset shifts which channel
// the target fires on relative to the triggering channel (spec §4.13),
// mirroring Event_handler_act's bound->ch_offset.
type Target struct {
	EventName     string
	Arg           expr.Node
	ChannelOffset int
}

// Cascade is one bind-map entry: a trigger's constraints gate a list of
// target events. Constraint is nil for an unconditional cascade.
type Cascade struct {
	Constraint expr.Node
	Targets    []Target
}

// colour is the three-state DFS marker from Bind_is_cyclic/Bind_dfs.
type colour int

const (
	colourNew colour = iota
	colourReached
	colourVisited
)

// entry is the per-trigger-name bucket: its cascades plus cycle-detection
// colour, grounded on Cblist.
type entry struct {
	cascades []Cascade
	colour   colour
}

// Map is the compiled, cycle-checked bind table.
type Map struct {
	entries map[string]*entry
}

// Builder accumulates cascades before Build validates the result.
type Builder struct {
	entries map[string]*entry
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]*entry)}
}

// Add registers a cascade triggered by eventName.
func (b *Builder) Add(eventName string, c Cascade) {
	e, ok := b.entries[eventName]
	if !ok {
		e = &entry{}
		b.entries[eventName] = e
	}
	e.cascades = append(e.cascades, c)
}

// Build validates the accumulated cascades are acyclic (every target name
// that is itself a trigger must not reach back to an ancestor trigger) and
// returns the compiled Map. Mirrors Bind_is_cyclic: a three-colour DFS
// starting from every NEW node.
func (b *Builder) Build() (*Map, error) {
	for _, e := range b.entries {
		e.colour = colourNew
	}
	for name, e := range b.entries {
		if e.colour == colourNew {
			if cyclic := b.dfs(name); cyclic {
				return nil, fmt.Errorf("bind: Bind contains a cycle")
			}
		}
	}
	return &Map{entries: b.entries}, nil
}

// dfs mirrors Bind_dfs: REACHED means "on the current path" (a back-edge to
// it is a cycle); VISITED means "fully explored, known acyclic".
func (b *Builder) dfs(name string) bool {
	e, ok := b.entries[name]
	if !ok || e.colour == colourVisited {
		return false
	}
	if e.colour == colourReached {
		return true
	}
	e.colour = colourReached
	for _, c := range e.cascades {
		for _, t := range c.Targets {
			if b.dfs(t.EventName) {
				return true
			}
		}
	}
	e.colour = colourVisited
	return false
}

// Env is the evaluation environment a predicate and target arg expressions
// run against: the event cache plus the firing event's own value under "$".
type Env = expr.Env

// FirstMatch returns the first cascade bound to eventName whose constraint
// holds against env (or has no constraint). It returns (nil, nil) when no
// cascade matches, and a nil cascade plus the error when a constraint fails
// to evaluate. Mirrors the original's first-match cascade semantics.
func (m *Map) FirstMatch(eventName string, env Env) (*Cascade, error) {
	e, ok := m.entries[eventName]
	if !ok {
		return nil, nil
	}
	for i := range e.cascades {
		c := &e.cascades[i]
		if c.Constraint == nil {
			return c, nil
		}
		v, err := c.Constraint.Eval(env)
		if err != nil {
			return nil, err
		}
		if v.AsBool() {
			return c, nil
		}
	}
	return nil, nil
}

// Matches returns every cascade bound to eventName whose constraint holds.
// Some bind maps fire more than one cascade per trigger (spec does not
// restrict to first-match only; FirstMatch follows the original's
// documented behaviour, Matches is the general form used by the event
// dispatcher's cascading fire-out).
func (m *Map) Matches(eventName string, env Env) ([]*Cascade, error) {
	e, ok := m.entries[eventName]
	if !ok {
		return nil, nil
	}
	var out []*Cascade
	for i := range e.cascades {
		c := &e.cascades[i]
		if c.Constraint == nil {
			out = append(out, c)
			continue
		}
		v, err := c.Constraint.Eval(env)
		if err != nil {
			return nil, err
		}
		if v.AsBool() {
			out = append(out, c)
		}
	}
	return out, nil
}

// HasTrigger reports whether any cascade is bound to eventName.
func (m *Map) HasTrigger(eventName string) bool {
	_, ok := m.entries[eventName]
	return ok
}
