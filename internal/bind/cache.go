package bind

import "github.com/kunquat/kunquat-go/internal/expr"

// EventCache remembers the most recent value seen for each event name, so a
// later predicate can reference an earlier event's value ("evaluated event
// names may in turn be bound", spec §4.10). Grounded on Bind_create_cache /
// Event_cache in original_source/src/lib/Bind.c, flattened from its
// AAtree-of-Value into a plain map.
type EventCache struct {
	values map[string]expr.Value
	rand   func() float64
}

// NewCache creates an empty cache. rand supplies the evaluator's rand()
// builtin; pass nil to use a fixed zero (deterministic tests).
func NewCache(rand func() float64) *EventCache {
	if rand == nil {
		rand = func() float64 { return 0 }
	}
	return &EventCache{values: make(map[string]expr.Value), rand: rand}
}

// Set records the most recent value fired for eventName.
func (c *EventCache) Set(eventName string, v expr.Value) {
	c.values[eventName] = v
}

// Lookup implements expr.Env: any name, "$" included, resolves to the value
// previously Set under that name. WithFiring does not write to the cache, so
// "$" is bound only in the Env that WithFiring returns.
func (c *EventCache) Lookup(name string) (expr.Value, bool) {
	if name == "$" {
		v, ok := c.values["$"]
		return v, ok
	}
	v, ok := c.values[name]
	return v, ok
}

// Rand implements expr.Env.
func (c *EventCache) Rand() float64 { return c.rand() }

// WithFiring returns an Env identical to c but with "$" bound to the value
// of the event currently being evaluated, without mutating the shared
// cache's own history.
func (c *EventCache) WithFiring(v expr.Value) expr.Env {
	return &firingEnv{cache: c, firing: v}
}

type firingEnv struct {
	cache  *EventCache
	firing expr.Value
}

func (e *firingEnv) Lookup(name string) (expr.Value, bool) {
	if name == "$" {
		return e.firing, true
	}
	return e.cache.Lookup(name)
}

func (e *firingEnv) Rand() float64 { return e.cache.Rand() }
