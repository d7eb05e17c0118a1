package voice

import "errors"

// Pool is a fixed array of pre-allocated voices with priority-based
// stealing, spec §4.6. Grounded on internal/sequencer/sequencer.go's
// noteOff/lastVoice bookkeeping, generalized into a real bounded pool with
// unique-id stale-reference detection.
type Pool struct {
	slots []Voice
}

// NewPool pre-allocates size voice slots.
func NewPool(size int) *Pool {
	slots := make([]Voice, size)
	for i := range slots {
		slots[i] = *newVoice()
	}
	return &Pool{slots: slots}
}

// Size returns the number of pre-allocated slots.
func (p *Pool) Size() int { return len(p.slots) }

// Acquire implements spec §4.6: prefer an inactive slot; otherwise steal
// the lowest-priority slot whose priority is <= desiredPriority. Returns
// (nil, false) if no slot qualifies.
func (p *Pool) Acquire(channelID uint32, desiredPriority Priority) (*Voice, bool) {
	for i := range p.slots {
		if p.slots[i].priority == PriorityInactive {
			return p.activate(i, channelID, desiredPriority), true
		}
	}
	// No free slot: find the lowest-priority candidate <= desiredPriority.
	best := -1
	for i := range p.slots {
		if p.slots[i].priority > desiredPriority {
			continue
		}
		if best == -1 || p.slots[i].priority < p.slots[best].priority {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	return p.activate(best, channelID, desiredPriority), true
}

func (p *Pool) activate(slot int, channelID uint32, priority Priority) *Voice {
	v := &p.slots[slot]
	v.resetRuntime()
	v.counter++
	v.id = makeID(slot, v.counter)
	v.priority = priority
	v.ChannelID = channelID
	v.Params = Params{}
	return v
}

// Lookup returns the voice at slot if its stored id still matches id,
// preventing stale-reference mutation after reclamation (spec §4.6).
func (p *Pool) Lookup(id ID) (*Voice, bool) {
	slot := id.Slot()
	if slot < 0 || slot >= len(p.slots) {
		return nil, false
	}
	v := &p.slots[slot]
	if v.id != id || v.priority == PriorityInactive {
		return nil, false
	}
	return v, true
}

// Release marks a voice's slot inactive, making it immediately available to
// Acquire. Any outstanding ID for this slot is now stale.
func (p *Pool) Release(id ID) error {
	v, ok := p.Lookup(id)
	if !ok {
		return errors.New("voice: stale id on release")
	}
	v.priority = PriorityInactive
	v.finished = true
	return nil
}

// ReclaimFinished releases every voice whose renderer marked it finished.
// Called once per mix slice after rendering.
func (p *Pool) ReclaimFinished() {
	for i := range p.slots {
		if p.slots[i].priority != PriorityInactive && p.slots[i].finished {
			p.slots[i].priority = PriorityInactive
		}
	}
}

// Active calls fn for every currently active voice, in slot order. Slot
// order is stable and does not affect output (mixing is commutative per
// spec §5) but keeps iteration deterministic for tests.
func (p *Pool) Active(fn func(v *Voice)) {
	for i := range p.slots {
		if p.slots[i].Active() {
			fn(&p.slots[i])
		}
	}
}

// ActiveCount returns the number of currently active voices.
func (p *Pool) ActiveCount() int {
	n := 0
	p.Active(func(*Voice) { n++ })
	return n
}

// ForChannel calls fn for every active voice owned by channelID.
func (p *Pool) ForChannel(channelID uint32, fn func(v *Voice)) {
	p.Active(func(v *Voice) {
		if v.ChannelID == channelID {
			fn(v)
		}
	})
}
