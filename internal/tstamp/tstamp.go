// Package tstamp implements Kunquat's rational musical-time value: a signed
// beat count plus a sub-beat remainder over a fixed, highly composite
// denominator, ordered lexicographically and exactly divisible by the small
// integers a tracker score actually needs (halves, thirds, sixths, ...).
package tstamp

import "fmt"

// Beat is the fixed sub-beat denominator K. It factors as 2^8*3^4*5*7*11*13,
// a super-composite number that divides exactly by every integer from 1
// through 16 (and many more), so common tuplet and slide fractions never
// accumulate rounding error.
const Beat int64 = 256 * 81 * 5 * 7 * 11 * 13

// Zero is the additive identity.
var Zero = Tstamp{}

// Tstamp is a rational musical-time position: Beats whole beats plus Rem
// sub-beat units in [0, Beat). Values are always kept normalized by the
// constructors and arithmetic methods in this package.
type Tstamp struct {
	Beats int64
	Rem   int64
}

// New constructs a normalized Tstamp from a beat count and a (possibly
// out-of-range or negative) remainder.
func New(beats, rem int64) Tstamp {
	return normalize(beats, rem)
}

// FromBeats constructs a Tstamp representing an integral number of beats.
func FromBeats(beats int64) Tstamp {
	return Tstamp{Beats: beats}
}

func normalize(beats, rem int64) Tstamp {
	if rem >= Beat {
		beats += rem / Beat
		rem %= Beat
	} else if rem < 0 {
		// Euclidean normalization: borrow whole beats until rem is in range.
		borrow := (-rem + Beat - 1) / Beat
		beats -= borrow
		rem += borrow * Beat
	}
	return Tstamp{Beats: beats, Rem: rem}
}

// Add returns t + other.
func (t Tstamp) Add(other Tstamp) Tstamp {
	return normalize(t.Beats+other.Beats, t.Rem+other.Rem)
}

// Sub returns t - other.
func (t Tstamp) Sub(other Tstamp) Tstamp {
	return normalize(t.Beats-other.Beats, t.Rem-other.Rem)
}

// Neg returns -t.
func (t Tstamp) Neg() Tstamp {
	return normalize(-t.Beats, -t.Rem)
}

// Cmp returns -1, 0 or 1 as t is less than, equal to, or greater than other,
// comparing lexicographically on (Beats, Rem) as required by spec.
func (t Tstamp) Cmp(other Tstamp) int {
	switch {
	case t.Beats < other.Beats:
		return -1
	case t.Beats > other.Beats:
		return 1
	case t.Rem < other.Rem:
		return -1
	case t.Rem > other.Rem:
		return 1
	default:
		return 0
	}
}

// Less reports whether t < other.
func (t Tstamp) Less(other Tstamp) bool { return t.Cmp(other) < 0 }

// IsZero reports whether t is the zero timestamp.
func (t Tstamp) IsZero() bool { return t.Beats == 0 && t.Rem == 0 }

// Sign returns -1, 0 or 1 according to the sign of t.
func (t Tstamp) Sign() int { return t.Cmp(Zero) }

// ToFloat returns the value of t in beats, as a float64. Used only for
// display and non-critical scaling; audio-affecting code must use
// ToFrames/FromFrames to preserve the drift bound.
func (t Tstamp) ToFloat() float64 {
	return float64(t.Beats) + float64(t.Rem)/float64(Beat)
}

func (t Tstamp) String() string {
	return fmt.Sprintf("%d+%d/%d", t.Beats, t.Rem, Beat)
}

// ToFrames converts a musical-time position to an audio frame count given a
// tempo (beats per minute) and sample rate (frames per second). Per spec
// §4.1 this truncates toward zero, which is correct both for position
// advances and (combined with ToFramesCeil below) for slice-length upper
// bounds.
//
// frames = (beats + rem/K) * sampleRate * 60 / tempo
func ToFrames(t Tstamp, tempo float64, sampleRate int64) int64 {
	if tempo <= 0 {
		return 0
	}
	// Keep the multiply-then-divide order that minimizes intermediate
	// rounding: (beats*K + rem) * sampleRate * 60 / (K * tempo).
	numerator := (float64(t.Beats)*float64(Beat) + float64(t.Rem)) * float64(sampleRate) * 60.0
	denominator := float64(Beat) * tempo
	frames := numerator / denominator
	return int64(frames) // truncate toward zero
}

// ToFramesCeil converts like ToFrames but rounds up, for use as a
// slice-length upper bound so a render call never overshoots the next
// scheduled event.
func ToFramesCeil(t Tstamp, tempo float64, sampleRate int64) int64 {
	if tempo <= 0 {
		return 0
	}
	numerator := (float64(t.Beats)*float64(Beat) + float64(t.Rem)) * float64(sampleRate) * 60.0
	denominator := float64(Beat) * tempo
	frames := numerator / denominator
	ceiled := int64(frames)
	if frames > float64(ceiled) {
		ceiled++
	}
	return ceiled
}

// FromFrames converts an audio frame count back to musical time given tempo
// and sample rate. Composed with ToFrames this round-trips to within one
// frame for any supported tempo/rate, per spec §8.
func FromFrames(frames int64, tempo float64, sampleRate int64) Tstamp {
	if sampleRate <= 0 {
		return Zero
	}
	// beats_total = frames * tempo / (sampleRate * 60)
	beatsExact := float64(frames) * tempo / (float64(sampleRate) * 60.0)
	totalRem := beatsExact * float64(Beat)
	rem := int64(totalRem)
	return New(0, rem)
}
