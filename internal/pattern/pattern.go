package pattern

import (
	"github.com/kunquat/kunquat-go/internal/curve"
	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Pattern is a fixed set of columns — one global, one per channel — played
// back together over [0, Length).
type Pattern struct {
	Length   tstamp.Tstamp
	Global   *Column
	Channels []*Column
}

// NewPattern creates a pattern with nChannels empty channel columns and an
// empty global column.
func NewPattern(length tstamp.Tstamp, nChannels int) *Pattern {
	p := &Pattern{Length: length, Global: NewColumn(), Channels: make([]*Column, nChannels)}
	for i := range p.Channels {
		p.Channels[i] = NewColumn()
	}
	return p
}

// Dispatcher receives events as pattern_mix fires them due.
type Dispatcher interface {
	Trigger(channel int, ev event.Event) error
}

// JumpTarget names where playback should continue after a jump event:
// a different pattern (by index into the caller's song order) and a
// position within it.
type JumpTarget struct {
	PatternIndex int
	Pos          tstamp.Tstamp
}

// Player drives one pattern's playback: current position, per-column read
// cursors, tempo (with an optional in-flight slide), and pending
// pattern-delay/jump state. Grounded on internal/sequencer/sequencer.go's
// trackCursor+runtimeState pair, generalized from fixed-tick tracks to
// Tstamp-keyed columns played against a single shared position.
type Player struct {
	pat *Pattern

	globalIdx int
	chanIdx   []int

	pos   tstamp.Tstamp
	tempo float64

	tempoSlide       curve.Slider
	tempoSlideActive bool

	delayUntil tstamp.Tstamp
	delaying   bool

	pendingJump *JumpTarget

	finished bool
}

// NewPlayer starts a player for pat at position zero with the given initial
// tempo.
func NewPlayer(pat *Pattern, tempo float64) *Player {
	return &Player{
		pat:     pat,
		chanIdx: make([]int, len(pat.Channels)),
		tempo:   tempo,
	}
}

// Pos returns the player's current position within the pattern.
func (p *Player) Pos() tstamp.Tstamp { return p.pos }

// Seek advances the player's position by the slice length the caller just
// mixed, following the return value of Advance. Must be called exactly once
// per Advance before the next Advance call.
func (p *Player) Seek(sliceLen tstamp.Tstamp) {
	p.pos = p.pos.Add(sliceLen)
}

// Tempo returns the current tempo in beats per minute.
func (p *Player) Tempo() float64 { return p.tempo }

// Finished reports whether playback has reached the end of the pattern
// with no pending jump.
func (p *Player) Finished() bool { return p.finished }

// PendingJump returns and clears any jump requested during the last Advance
// call, so the caller (the song-order player) can switch patterns.
func (p *Player) PendingJump() *JumpTarget {
	j := p.pendingJump
	p.pendingJump = nil
	return j
}

// nextDeadline returns the smallest Tstamp at or after p.pos at which
// something needs attention: the next due event in any column, the end of
// a pattern delay, or the pattern's own length. While a pattern delay is
// pending no column event fires, so only the delay's end and the pattern
// length count. Mirrors dispatchTick's "process everything due, then stop
// at the next boundary" loop, adapted to musical time instead of integer
// ticks.
func (p *Player) nextDeadline() tstamp.Tstamp {
	deadline := p.pat.Length
	if p.delaying {
		if p.delayUntil.Less(deadline) {
			deadline = p.delayUntil
		}
		return deadline
	}
	consider := func(idx int, col *Column) {
		if idx < col.Len() {
			pos := col.At(idx).Pos
			if pos.Less(deadline) {
				deadline = pos
			}
		}
	}
	consider(p.globalIdx, p.pat.Global)
	for i, col := range p.pat.Channels {
		consider(p.chanIdx[i], col)
	}
	return deadline
}

// Advance processes every event due at the player's current position, then
// returns the slice length (>= 0) until the next thing requiring attention,
// capped at maxLen. The caller mixes audio for that slice length before
// calling Advance again. Returns a length of zero once playback has
// finished, right after a jump event fired (the caller collects it with
// PendingJump), and when maxLen is zero.
func (p *Player) Advance(disp Dispatcher, maxLen tstamp.Tstamp) (tstamp.Tstamp, error) {
	if p.finished {
		return tstamp.Tstamp{}, nil
	}

	if p.delaying {
		if p.pos.Cmp(p.delayUntil) < 0 {
			return p.clampSlice(p.delayUntil, maxLen), nil
		}
		p.delaying = false
	}

	if err := p.fireDue(disp, p.pat.Global, &p.globalIdx, -1); err != nil {
		return tstamp.Tstamp{}, err
	}
	for i, col := range p.pat.Channels {
		if err := p.fireDue(disp, col, &p.chanIdx[i], i); err != nil {
			return tstamp.Tstamp{}, err
		}
	}

	if p.pendingJump != nil {
		return tstamp.Tstamp{}, nil
	}

	if p.tempoSlideActive {
		p.tempo = p.tempoSlide.Step()
		if !p.tempoSlide.Active() {
			p.tempoSlideActive = false
		}
	}

	deadline := p.nextDeadline()
	slice := p.clampSlice(deadline, maxLen)
	if p.pos.Add(slice).Cmp(deadline) >= 0 && deadline.Cmp(p.pat.Length) >= 0 && p.allColumnsExhausted() {
		p.finished = true
	}
	return slice, nil
}

func (p *Player) clampSlice(deadline, maxLen tstamp.Tstamp) tstamp.Tstamp {
	remaining := deadline.Sub(p.pos)
	if remaining.Sign() < 0 {
		remaining = tstamp.Tstamp{}
	}
	if maxLen.Cmp(remaining) < 0 {
		return maxLen
	}
	return remaining
}

func (p *Player) allColumnsExhausted() bool {
	if p.globalIdx < p.pat.Global.Len() {
		return false
	}
	for i, col := range p.pat.Channels {
		if p.chanIdx[i] < col.Len() {
			return false
		}
	}
	return true
}

// fireDue dispatches every entry in col at or before p.pos, handling the
// global-only control events (tempo, tempo slide, jump, pattern delay)
// inline and forwarding everything else to disp. channel is -1 for the
// global column.
func (p *Player) fireDue(disp Dispatcher, col *Column, idx *int, channel int) error {
	for *idx < col.Len() {
		e := col.At(*idx)
		if e.Pos.Cmp(p.pos) > 0 {
			break
		}
		*idx++

		switch e.Event.Kind {
		case event.KindSetTempo:
			p.tempo = e.Event.Value.F
			p.tempoSlideActive = false
		case event.KindSlideTempo:
			p.tempoSlide.SlideTo(e.Event.Value.F, 1)
			p.tempoSlideActive = true
		case event.KindSlideTempoLength:
			frames := int(tstamp.ToFrames(e.Event.Value.T, p.tempo, 44100))
			p.tempoSlide.SlideTo(p.tempoSlide.Value(), frames)
		case event.KindPatternDelay:
			p.delaying = true
			p.delayUntil = p.pos.Add(e.Event.Value.T)
		case event.KindJump:
			p.pendingJump = &JumpTarget{PatternIndex: int(e.Event.Value.I), Pos: tstamp.Tstamp{}}
		default:
			if err := disp.Trigger(channel, e.Event); err != nil {
				return err
			}
		}
	}
	return nil
}
