// Package wbuf implements the fixed-size float scratch buffers shared by the
// audio-thread device graph: plain backing arrays plus the invalidity /
// constant-region / final metadata the renderer depends on to take fast
// paths and to detect producers that are done emitting signal.
package wbuf

// Buffer is a single-channel work buffer of fixed capacity. It mirrors the
// teacher's plain []float32 scratch slice (internal/audio/stream.go's
// StreamReader.buf) but carries the extra bookkeeping spec §4.2 requires.
type Buffer struct {
	data      []float32
	invalid   bool
	constFrom int // index from which the buffer holds a constant value to len(data); len(data) means "no constant tail"
	constVal  float32
	final     bool // producer will emit no further non-zero content
}

// New allocates a Buffer of the given frame length, initially invalid.
func New(length int) *Buffer {
	return &Buffer{
		data:      make([]float32, length),
		invalid:   true,
		constFrom: length,
	}
}

// Len returns the buffer's frame length.
func (b *Buffer) Len() int { return len(b.data) }

// Resize grows or shrinks the backing array in place, discarding content and
// marking the buffer invalid. Matches the teacher's stream reader pattern of
// growing a reusable slice (cap check, re-slice) rather than reallocating
// every call.
func (b *Buffer) Resize(length int) {
	if cap(b.data) < length {
		b.data = make([]float32, length)
	} else {
		b.data = b.data[:length]
	}
	b.invalid = true
	b.constFrom = length
	b.final = false
}

// Invalidate marks the buffer's contents as undefined. Reading an invalid
// buffer is a programming error in the caller; this package does not panic
// on read to keep the audio thread allocation/branch-free, but Valid() lets
// callers assert in debug builds.
func (b *Buffer) Invalidate() {
	b.invalid = true
	b.constFrom = len(b.data)
	b.final = false
}

// Valid reports whether the buffer currently holds defined content.
func (b *Buffer) Valid() bool { return !b.invalid }

// Data returns the backing slice. Callers must check Valid() first; this
// mirrors the teacher's convention of trusting the caller on the hot path.
func (b *Buffer) Data() []float32 { return b.data }

// Clear zeroes [start, stop) and marks that region (and beyond, up to the
// previous constant start) valid with a constant value of 0. Per spec, the
// const_start marker is monotonic within one process call: clearing can
// only extend the constant region, never retract it arbitrarily, since
// Clear always declares constant-zero from start onward once applied
// through the end of the buffer.
func (b *Buffer) Clear(start, stop int) {
	if start < 0 {
		start = 0
	}
	if stop > len(b.data) {
		stop = len(b.data)
	}
	for i := start; i < stop; i++ {
		b.data[i] = 0
	}
	b.invalid = false
	if stop >= len(b.data) && start <= b.constFrom {
		b.constFrom = start
		b.constVal = 0
	}
}

// FillConst fills the whole buffer with value and declares it constant from
// index 0, enabling fast-path mixing downstream.
func (b *Buffer) FillConst(value float32) {
	for i := range b.data {
		b.data[i] = value
	}
	b.invalid = false
	b.constFrom = 0
	b.constVal = value
}

// ConstRegion reports the index from which the buffer is constant (equal to
// ConstVal) through the end of the buffer, and that value. If the returned
// index equals Len(), no constant tail is declared.
func (b *Buffer) ConstRegion() (from int, value float32) {
	return b.constFrom, b.constVal
}

// SetFinal marks that the producer of this buffer will emit no further
// non-zero content on subsequent process calls.
func (b *Buffer) SetFinal(final bool) { b.final = final }

// Final reports whether the producer has signaled completion.
func (b *Buffer) Final() bool { return b.final }

// MixFrom adds other's [start, stop) range into this buffer's matching
// range. Frames inside other's declared constant tail are skipped when that
// constant is exactly zero; every other frame, including a non-zero
// constant tail, is added sample by sample. When a frame is added inside
// this buffer's own constant tail, the tail is moved to start at stop.
// mask, if non-nil, gates which frames are mixed (mask[i] != 0 mixes frame
// i; frames at or past len(mask) are mixed) — used by channels/voices that
// only want to contribute a sub-range.
func (b *Buffer) MixFrom(other *Buffer, start, stop int, mask []float32) {
	if start < 0 {
		start = 0
	}
	if stop > len(b.data) || stop > len(other.data) {
		if len(b.data) < len(other.data) {
			stop = len(b.data)
		} else {
			stop = len(other.data)
		}
	}
	constFrom, constVal := other.ConstRegion()
	added := false
	for i := start; i < stop; i++ {
		if mask != nil && i < len(mask) && mask[i] == 0 {
			continue
		}
		if i >= constFrom && constVal == 0 {
			continue
		}
		b.data[i] += other.data[i]
		added = true
	}
	if added && b.constFrom < stop {
		b.constFrom = stop
	}
	b.invalid = false
}

// AllZeroConst is a convenience for producers that want to declare "nothing
// to render this call" without a memset: callers should still Clear() if
// the buffer's previous contents must not leak, but for a brand-new Buffer
// (already invalid) this just flips validity.
func (b *Buffer) AllZeroConst() {
	b.invalid = false
	b.constFrom = 0
	b.constVal = 0
	for i := range b.data {
		b.data[i] = 0
	}
}

// WriteRange copies samples[i] into [start,start+len(samples)) and declares
// the buffer valid with no constant tail over that range. Producers of real
// (non-constant) signal — a voice-pool mix, a sample player — use this
// instead of Clear+Data so downstream MixFrom calls don't wrongly treat the
// range as constant zero.
func (b *Buffer) WriteRange(start int, samples []float32) {
	copy(b.data[start:], samples)
	b.invalid = false
	b.constFrom = len(b.data)
	b.constVal = 0
}
