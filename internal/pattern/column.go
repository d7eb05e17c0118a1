// Package pattern implements the column/pattern player (spec §4.12): a
// column is a time-ordered sequence of events keyed by Tstamp; a pattern is
// a fixed set of columns (one per channel) played back together, with
// global events, pattern-delay re-queueing, jumps and tempo slides handled
// by pattern_mix.
//
// Grounded on internal/sequencer/sequencer.go's trackCursor / tick
// accumulation main loop (dispatchTick's "apply every due event, then
// advance" pattern generalizes directly into pattern_mix's slice-length
// algorithm), adapted from fixed integer ticks to the engine's Tstamp unit.
package pattern

import (
	"sort"

	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Entry is one scheduled event in a column.
type Entry struct {
	Pos   tstamp.Tstamp
	Event event.Event
}

// Column is a single channel's or the global track's event list, ordered by
// Pos. Grounded on the original's balanced-tree-of-events design; Go's
// sort.Search over a kept-sorted slice gives the same "find the first entry
// at or after a Tstamp" query the pattern player needs without a custom
// tree, at the cost of O(n) insertion instead of O(log n) — acceptable
// since columns are built once at load time and not mutated during
// playback.
type Column struct {
	entries []Entry
	version uint64 // bumped on every Insert; iterators check this to detect invalidation
}

// NewColumn creates an empty column.
func NewColumn() *Column { return &Column{} }

// Insert adds an event at pos, keeping entries sorted by Pos (stable among
// equal positions, preserving insertion order for simultaneous events).
func (c *Column) Insert(pos tstamp.Tstamp, e event.Event) {
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Pos.Cmp(pos) > 0
	})
	c.entries = append(c.entries, Entry{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = Entry{Pos: pos, Event: e}
	c.version++
}

// Len returns the number of entries.
func (c *Column) Len() int { return len(c.entries) }

// At returns the entry at index i.
func (c *Column) At(i int) Entry { return c.entries[i] }

// Version returns the column's current modification counter.
func (c *Column) Version() uint64 { return c.version }

// Iterator walks a column's entries from a starting Tstamp, reporting
// whether the column changed underneath it (spec requires iterator
// invalidation on structural change; this player never mutates columns
// mid-playback, so Stale will in practice never trip, but the check is
// cheap and documents the invariant).
type Iterator struct {
	col     *Column
	idx     int
	version uint64
}

// From creates an iterator positioned at the first entry with Pos >= from.
func (c *Column) From(from tstamp.Tstamp) *Iterator {
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Pos.Cmp(from) >= 0
	})
	return &Iterator{col: c, idx: idx, version: c.version}
}

// Next returns the next entry and true, or a zero Entry and false at the
// end of the column.
func (it *Iterator) Next() (Entry, bool) {
	if it.idx >= len(it.col.entries) {
		return Entry{}, false
	}
	e := it.col.entries[it.idx]
	it.idx++
	return e, true
}

// Stale reports whether the underlying column has been mutated since this
// iterator was created.
func (it *Iterator) Stale() bool { return it.version != it.col.version }
