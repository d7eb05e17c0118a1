// Package devstate implements the device state registry (spec §4.8): one
// entry per device in the graph, holding the immutable configuration shared
// across render threads plus a per-thread scratch block threads use without
// contention.
//
// Grounded on internal/sequencer/sequencer.go's trackRuntime []runtimeState
// parallel array keyed by track index; generalized into a map keyed by
// device id (the graph has no fixed device count known up front) holding a
// small per-device scratch slice instead of a single flat array.
package devstate

import "sync"

// Shared holds a device's configuration values that every render thread
// reads but nothing mutates mid-mix: audio rate, buffer size and tempo, set
// by the player before a slice renders (spec §4.8 set_audio_rate /
// set_buffer_size / set_tempo).
type Shared struct {
	AudioRate  float64
	BufferSize int
	Tempo      float64
}

// Scratch is one render thread's private working state for a device. Each
// thread gets its own Scratch so concurrent device renders (internal/graph's
// errgroup fan-out) never contend on it.
type Scratch struct {
	Data map[string]float64
}

func newScratch() *Scratch {
	return &Scratch{Data: make(map[string]float64)}
}

// Registry is the hash table of device states keyed by device id.
type Registry struct {
	mu      sync.RWMutex
	shared  map[string]*Shared
	scratch map[string][]*Scratch // per-device, one Scratch per thread slot
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		shared:  make(map[string]*Shared),
		scratch: make(map[string][]*Scratch),
	}
}

// AddDevice registers a device id with default shared state and nThreads
// scratch blocks.
func (r *Registry) AddDevice(id string, nThreads int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shared[id]; ok {
		return
	}
	r.shared[id] = &Shared{}
	scratch := make([]*Scratch, nThreads)
	for i := range scratch {
		scratch[i] = newScratch()
	}
	r.scratch[id] = scratch
}

// RemoveDevice drops a device's state entirely.
func (r *Registry) RemoveDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shared, id)
	delete(r.scratch, id)
}

// Shared returns the shared state for id, or nil if unknown.
func (r *Registry) Shared(id string) *Shared {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shared[id]
}

// Scratch returns the per-thread scratch block for id and thread, or nil if
// either is out of range.
func (r *Registry) Scratch(id string, thread int) *Scratch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blocks, ok := r.scratch[id]
	if !ok || thread < 0 || thread >= len(blocks) {
		return nil
	}
	return blocks[thread]
}

// SetAudioRate fans a new audio rate out to every registered device's
// shared state, per spec §4.8.
func (r *Registry) SetAudioRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shared {
		s.AudioRate = rate
	}
}

// SetBufferSize fans a new buffer size out to every registered device.
func (r *Registry) SetBufferSize(size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shared {
		s.BufferSize = size
	}
}

// SetTempo fans a new tempo out to every registered device.
func (r *Registry) SetTempo(tempo float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shared {
		s.Tempo = tempo
	}
}

// DeviceIDs returns the ids of every registered device, in no particular
// order.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.shared))
	for id := range r.shared {
		ids = append(ids, id)
	}
	return ids
}
