// Package controlvar implements control variables and their device
// bindings (spec §4.11): a named, typed variable exposed by an instrument
// or effect, with an initial value and a range, whose Set operation walks
// a bound list of target-device expressions and applies each one.
//
// Grounded on
// original_source/src/lib/init/devices/Au_control_vars.c's Var_entry /
// Bind_entry linked-list shapes, flattened into Go slices/maps; binding
// expressions are evaluated by internal/expr rather than the original's
// inline expr.h calls.
package controlvar

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/expr"
)

// Type is a control variable's value kind, mirroring Var_entry_type.
type Type int

const (
	TypeBool Type = iota
	TypeInt
	TypeFloat
	TypeTstamp
)

// Range constrains an Int or Float control variable's Set calls. The zero
// value (Min == Max == 0) means unconstrained. Bool and tstamp variables
// ignore Range.
type Range struct {
	Min, Max float64
}

func (r Range) contains(v float64) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// Binding is one device this control variable drives: an expression
// evaluated with "$" bound to the new value, whose result is written to
// TargetVar on TargetDevice.
type Binding struct {
	TargetDevice string
	TargetVar    string
	Expr         expr.Node
}

// Var is one control variable declaration plus its current value and bind
// list, mirroring Var_entry/Bind_entry.
type Var struct {
	Name     string
	Type     Type
	Range    Range
	value    expr.Value
	bindings []Binding
}

// Sink receives the applied value of one binding; the caller (typically the
// device graph's control-var dispatch) supplies how a value actually
// reaches a device's parameter.
type Sink func(targetDevice, targetVar string, v expr.Value) error

// Registry holds every declared control variable for one instrument or
// effect, keyed by name.
type Registry struct {
	vars map[string]*Var
	rand func() float64
}

// NewRegistry creates an empty registry. rand supplies the rand() builtin
// used by binding expressions.
func NewRegistry(rand func() float64) *Registry {
	if rand == nil {
		rand = func() float64 { return 0 }
	}
	return &Registry{vars: make(map[string]*Var), rand: rand}
}

// Declare registers a new control variable with its initial value. Declaring
// the same name twice replaces the prior declaration.
func (r *Registry) Declare(name string, typ Type, rng Range, init expr.Value) {
	r.vars[name] = &Var{Name: name, Type: typ, Range: rng, value: init}
}

// Bind adds a target binding to an already-declared variable.
func (r *Registry) Bind(name string, b Binding) error {
	v, ok := r.vars[name]
	if !ok {
		return fmt.Errorf("controlvar: %q not declared", name)
	}
	v.bindings = append(v.bindings, b)
	return nil
}

// Value returns a variable's current value and whether it is declared.
func (r *Registry) Value(name string) (expr.Value, bool) {
	v, ok := r.vars[name]
	if !ok {
		return expr.Value{}, false
	}
	return v.value, true
}

type regEnv struct {
	r *Registry
	v expr.Value
}

func (e regEnv) Lookup(name string) (expr.Value, bool) {
	if name == "$" {
		return e.v, true
	}
	return e.r.Value(name)
}

func (e regEnv) Rand() float64 { return e.r.rand() }

// Set validates v against the variable's declared range, stores it, and
// evaluates every bound target expression (with "$" bound to v), calling
// sink for each. Set stops and returns the first evaluation or range error;
// bindings already applied are not rolled back, matching the original's
// one-pass iteration.
func (r *Registry) Set(name string, v expr.Value, sink Sink) error {
	cv, ok := r.vars[name]
	if !ok {
		return fmt.Errorf("controlvar: %q not declared", name)
	}
	if cv.Type == TypeInt || cv.Type == TypeFloat {
		if !cv.Range.contains(v.AsFloat()) {
			return fmt.Errorf("controlvar: value %v out of range for %q", v.AsFloat(), name)
		}
	}
	cv.value = v

	env := regEnv{r: r, v: v}
	for _, b := range cv.bindings {
		if b.Expr == nil {
			if sink != nil {
				if err := sink(b.TargetDevice, b.TargetVar, v); err != nil {
					return err
				}
			}
			continue
		}
		result, err := b.Expr.Eval(env)
		if err != nil {
			return fmt.Errorf("controlvar: binding %s.%s: %w", b.TargetDevice, b.TargetVar, err)
		}
		if sink != nil {
			if err := sink(b.TargetDevice, b.TargetVar, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// Names returns every declared variable name, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.vars))
	for n := range r.vars {
		names = append(names, n)
	}
	return names
}
