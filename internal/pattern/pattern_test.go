package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/tstamp"
)

type recordDispatcher struct {
	fired []struct {
		ch int
		ev event.Event
	}
}

func (r *recordDispatcher) Trigger(ch int, ev event.Event) error {
	r.fired = append(r.fired, struct {
		ch int
		ev event.Event
	}{ch, ev})
	return nil
}

func noteOn(freq float64) event.Event {
	return event.Event{Kind: event.KindNoteOn, Value: event.Value{Type: event.TypeReal, F: freq}}
}

func TestColumnInsertKeepsSortedOrder(t *testing.T) {
	c := NewColumn()
	c.Insert(tstamp.FromBeats(2), noteOn(1))
	c.Insert(tstamp.FromBeats(1), noteOn(2))
	c.Insert(tstamp.FromBeats(3), noteOn(3))

	require.Equal(t, 3, c.Len())
	assert.Equal(t, int64(1), c.At(0).Pos.Beats)
	assert.Equal(t, int64(2), c.At(1).Pos.Beats)
	assert.Equal(t, int64(3), c.At(2).Pos.Beats)
}

func TestIteratorFromSkipsEarlierEntries(t *testing.T) {
	c := NewColumn()
	c.Insert(tstamp.FromBeats(1), noteOn(1))
	c.Insert(tstamp.FromBeats(5), noteOn(2))

	it := c.From(tstamp.FromBeats(3))
	e, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, int64(5), e.Pos.Beats)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestPlayerFiresChannelEventsDueAtCurrentPosition(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(4), 1)
	pat.Channels[0].Insert(tstamp.FromBeats(0), noteOn(440))
	pat.Channels[0].Insert(tstamp.FromBeats(2), noteOn(880))

	p := NewPlayer(pat, 120)
	disp := &recordDispatcher{}

	slice, err := p.Advance(disp, tstamp.FromBeats(10))
	require.NoError(t, err)
	require.Len(t, disp.fired, 1)
	assert.Equal(t, int64(440), int64(disp.fired[0].ev.Value.F))
	assert.Equal(t, int64(2), slice.Beats) // stops right before the next due event

	p.Seek(slice)
	_, err = p.Advance(disp, tstamp.FromBeats(10))
	require.NoError(t, err)
	require.Len(t, disp.fired, 2)
}

func TestPlayerRespectsMaxSliceLenCap(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(10), 1)
	p := NewPlayer(pat, 120)
	disp := &recordDispatcher{}

	slice, err := p.Advance(disp, tstamp.FromBeats(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), slice.Beats)
	assert.False(t, p.Finished())
}

func TestPlayerFinishesAfterConsumingWholePatternWithNoEvents(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(2), 1)
	p := NewPlayer(pat, 120)
	disp := &recordDispatcher{}

	slice, err := p.Advance(disp, tstamp.FromBeats(100))
	require.NoError(t, err)
	p.Seek(slice)
	assert.True(t, p.Finished())

	slice2, err := p.Advance(disp, tstamp.FromBeats(100))
	require.NoError(t, err)
	assert.True(t, slice2.IsZero())
}

func TestPatternDelayPausesAdvanceWithoutFiringFurtherEvents(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(10), 1)
	pat.Global.Insert(tstamp.FromBeats(0), event.Event{
		Kind:  event.KindPatternDelay,
		Value: event.Value{Type: event.TypeTstamp, T: tstamp.FromBeats(3)},
	})
	pat.Channels[0].Insert(tstamp.FromBeats(1), noteOn(1))

	p := NewPlayer(pat, 120)
	disp := &recordDispatcher{}

	slice, err := p.Advance(disp, tstamp.FromBeats(100))
	require.NoError(t, err)
	assert.Equal(t, int64(3), slice.Beats, "delay holds position for its full length, skipping the note at beat 1")
	assert.Empty(t, disp.fired)
}

func TestJumpEventSetsPendingJumpAndHaltsAdvance(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(10), 1)
	pat.Global.Insert(tstamp.FromBeats(0), event.Event{
		Kind:  event.KindJump,
		Value: event.Value{Type: event.TypePatternLoc, I: 2},
	})

	p := NewPlayer(pat, 120)
	disp := &recordDispatcher{}

	_, err := p.Advance(disp, tstamp.FromBeats(100))
	require.NoError(t, err)

	j := p.PendingJump()
	require.NotNil(t, j)
	assert.Equal(t, 2, j.PatternIndex)

	assert.Nil(t, p.PendingJump(), "PendingJump clears after being read once")
}

func TestSetTempoEventUpdatesPlayerTempo(t *testing.T) {
	pat := NewPattern(tstamp.FromBeats(10), 1)
	pat.Global.Insert(tstamp.FromBeats(0), event.Event{
		Kind:  event.KindSetTempo,
		Value: event.Value{Type: event.TypeFloat, F: 140},
	})

	p := NewPlayer(pat, 120)
	_, err := p.Advance(&recordDispatcher{}, tstamp.FromBeats(100))
	require.NoError(t, err)
	assert.Equal(t, 140.0, p.Tempo())
}
