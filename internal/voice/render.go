package voice

import "math"

// biquadState holds the running state of a two-pole resonant lowpass
// filter (direct form I), per spec §4.5 step 3. Grounded on
// internal/fm/engine.go's per-operator envelope state pattern, generalized
// to a real digital filter instead of an envelope follower.
type biquadState struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

// biquadCoeffs computes lowpass coefficients for a cutoff (Hz) and
// resonance (Q, >= 0.5) at the given sample rate, using the RBJ cookbook
// lowpass formula.
func biquadCoeffs(cutoff, resonance, sampleRate float64) biquadState {
	if cutoff <= 0 {
		cutoff = 1
	}
	if cutoff > sampleRate/2-1 {
		cutoff = sampleRate/2 - 1
	}
	q := resonance
	if q < 0.5 {
		q = 0.5
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)

	b0 := (1 - cosw0) / 2
	b1 := 1 - cosw0
	b2 := (1 - cosw0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return biquadState{
		b0: b0 / a0, b1: b1 / a0, b2: b2 / a0,
		a1: a1 / a0, a2: a2 / a0,
	}
}

// step runs one sample through the filter, carrying coefficients from c and
// history from the receiver.
func (s *biquadState) step(c biquadState, in float64) float64 {
	out := c.b0*in + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
	s.x2, s.x1 = s.x1, in
	s.y2, s.y1 = s.y1, out
	return out
}

// filterChangeThreshold is the minimum relative cutoff change (roughly one
// 48th of an octave) that triggers a crossfaded coefficient swap rather than
// an in-place update, per spec §4.5 step 3.
const filterChangeThreshold = 1.0145 // 2^(1/48)

// Render fills out[start:stop] (interleaved stereo, len(out) >= 2*stop) with
// this voice's contribution for the slice, advancing all per-voice state.
// sampleRate is needed to step the LFOs and envelopes in real time.
func (v *Voice) Render(out []float64, start, stop int, sampleRate float64) {
	samp := v.Params.Sample
	if samp == nil || v.finished {
		return
	}

	for i := start; i < stop; i++ {
		pitchHz := v.stepPitch(sampleRate)
		amp, forceEnded := v.stepForce(sampleRate)
		cutoff, resonance := v.stepFilterTargets(sampleRate, amp)

		frame, ok := v.readSample(samp, pitchHz, sampleRate)
		if !ok {
			v.finishRelease()
			break
		}

		filtered := v.applyFilter(frame, cutoff, resonance, sampleRate)
		sig := filtered * amp * v.releaseGain()

		l, r := v.stepPan(sig)
		out[2*i] += l
		out[2*i+1] += r

		if forceEnded {
			v.finished = true
			break
		}

		if v.releaseRampLeft > 0 {
			v.releaseRampLeft--
			if v.releaseRampLeft == 0 {
				v.finished = true
			}
		}
	}
}

func (v *Voice) stepPitch(sampleRate float64) float64 {
	hz := v.Params.BasePitchHz
	hz *= math.Pow(2, v.Params.PitchSlider.Value()/1200.0)
	v.Params.PitchSlider.Step()

	if v.Params.VibratoLFO != nil {
		centsOffset := v.Params.VibratoLFO.Step(sampleRate)
		hz *= math.Pow(2, centsOffset/1200.0)
	}
	if len(v.Params.Arpeggio) > 0 && v.Params.ArpeggioRate > 0 {
		idx := int(v.arpPhase) % len(v.Params.Arpeggio)
		hz *= math.Pow(2, v.Params.Arpeggio[idx]/12.0)
		v.arpPhase += v.Params.ArpeggioRate / sampleRate
	}
	return hz
}

// stepForce advances the force envelope/slider/tremolo by one sample and
// returns the combined amplitude. ended is true once the force envelope has
// reached a terminal node whose value is zero (spec §4.5 step 2): the
// caller must not render any further frames for this voice and must mark
// it finished.
func (v *Voice) stepForce(sampleRate float64) (force float64, ended bool) {
	force = v.Params.ForceSlider.Value() * v.Params.GlobalForce
	v.Params.ForceSlider.Step()

	if v.Params.TremoloLFO != nil {
		force *= 1 + v.Params.TremoloLFO.Step(sampleRate)
	}
	if v.Params.ForceEnvelope != nil {
		if v.forceEnvState.Env == nil {
			v.forceEnvState.Env = v.Params.ForceEnvelope
		}
		scale := 1.0
		if v.Params.ForceEnvCenter > 0 && v.Params.ForceEnvScale != 0 {
			scale = math.Pow(v.Params.BasePitchHz/v.Params.ForceEnvCenter, v.Params.ForceEnvScale)
		}
		dx := 1.0 / sampleRate * scale
		envValue := v.forceEnvState.Step(dx)
		force *= envValue
		if v.forceEnvState.Finished && envValue == 0 {
			ended = true
		}
	}
	if v.releaseEnvActive {
		if v.releaseEnvState.Env == nil {
			v.releaseEnvState.Env = v.Params.ReleaseEnvelope
		}
		// A fully pressed sustain pedal (1) holds the release envelope still.
		relValue := v.releaseEnvState.Step(1.0 / sampleRate * (1 - v.Params.SustainPedal))
		force *= relValue
		if v.releaseEnvState.Finished && relValue == 0 {
			ended = true
		}
	}
	return force, ended
}

func (v *Voice) stepFilterTargets(sampleRate, force float64) (cutoff, resonance float64) {
	cutoff = v.Params.FilterCutoffSlider.Value()
	v.Params.FilterCutoffSlider.Step()
	resonance = v.Params.FilterResonance

	if v.Params.AutowahLFO != nil {
		cutoff *= 1 + v.Params.AutowahLFO.Step(sampleRate)
	}
	if v.Params.FilterEnvelope != nil {
		cutoff += v.Params.FilterEnvelope.ValueAt(force)
	}
	return cutoff, resonance
}

func (v *Voice) applyFilter(in, cutoff, resonance, sampleRate float64) float64 {
	if v.lastCutoff == 0 && v.lastResonance == 0 {
		v.lastCutoff, v.lastResonance = cutoff, resonance
	}
	changed := v.lastCutoff == 0 || cutoff/v.lastCutoff > filterChangeThreshold ||
		v.lastCutoff/cutoff > filterChangeThreshold || resonance != v.lastResonance

	if changed && !v.filterFading {
		v.filterFadePrev = v.filterState
		v.filterFading = true
		v.filterFadeFrame = 0
		v.filterFadeFrames = filterCrossfadeFrames
	}

	coeffs := biquadCoeffs(cutoff, resonance, sampleRate)
	next := v.filterState.step(coeffs, in)

	if !v.filterFading {
		return next
	}

	prevCoeffs := biquadCoeffs(v.lastCutoff, v.lastResonance, sampleRate)
	prev := v.filterFadePrev.step(prevCoeffs, in)

	t := float64(v.filterFadeFrame) / float64(v.filterFadeFrames)
	v.filterFadeFrame++
	if v.filterFadeFrame >= v.filterFadeFrames {
		v.filterFading = false
		v.lastCutoff, v.lastResonance = cutoff, resonance
	}
	return prev*(1-t) + next*t
}

// readSample advances sample playback position by the ratio of pitchHz to
// the sample's middle frequency and returns the interpolated frame, or
// false if playback has run past the end without looping.
func (v *Voice) readSample(samp *Sample, pitchHz, sampleRate float64) (float64, bool) {
	if len(samp.Frames) == 0 {
		return 0, false
	}
	middleHz := samp.MiddleFreq
	if middleHz <= 0 {
		middleHz = 440
	}
	step := pitchHz / middleHz * (samp.SampleRate / sampleRate)

	pos := v.samplePos
	i0 := int(pos)
	frac := pos - float64(i0)
	i1 := i0 + v.sampleDir
	if i1 < 0 || i1 >= len(samp.Frames) {
		i1 = i0
	}
	v0 := samp.Frames[clampIdx(i0, len(samp.Frames))]
	v1 := samp.Frames[clampIdx(i1, len(samp.Frames))]
	out := v0 + (v1-v0)*frac

	v.advanceSamplePos(samp, step)
	if v.samplePos < 0 || int(v.samplePos) >= len(samp.Frames) {
		return out, false
	}
	return out, true
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (v *Voice) advanceSamplePos(samp *Sample, step float64) {
	switch samp.Loop {
	case LoopNone:
		v.samplePos += step
	case LoopUnidirectional:
		v.samplePos += step
		loopLen := float64(samp.LoopEnd - samp.LoopStart)
		if loopLen > 0 && v.samplePos >= float64(samp.LoopEnd) {
			over := v.samplePos - float64(samp.LoopEnd)
			v.samplePos = float64(samp.LoopStart) + math.Mod(over, loopLen)
		}
	case LoopBidirectional:
		v.samplePos += step * float64(v.sampleDir)
		loopLen := float64(samp.LoopEnd - samp.LoopStart)
		if loopLen <= 0 {
			return
		}
		for v.samplePos >= float64(samp.LoopEnd) {
			v.samplePos = 2*float64(samp.LoopEnd) - v.samplePos
			v.sampleDir = -v.sampleDir
		}
		for v.samplePos < float64(samp.LoopStart) {
			v.samplePos = 2*float64(samp.LoopStart) - v.samplePos
			v.sampleDir = -v.sampleDir
		}
	}
}

// releaseGain applies the fallback linear release ramp when no release
// envelope handles the note-off (spec §4.5 step 4).
func (v *Voice) releaseGain() float64 {
	if v.noteOn || v.releaseRampLeft == 0 {
		return 1
	}
	return float64(v.releaseRampLeft) / float64(v.releaseRampFrames)
}

func (v *Voice) finishRelease() {
	if v.releaseRampLeft == 0 {
		v.finished = true
	}
}

func (v *Voice) stepPan(sig float64) (left, right float64) {
	pan := v.Params.PanSlider.Value()
	v.Params.PanSlider.Step()
	if v.Params.PitchPanEnvelope != nil {
		pan += v.Params.PitchPanEnvelope.ValueAt(v.Params.BasePitchHz)
	}
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	// linear pan law, spec §4.5 step 5: unity gain on both channels at
	// pan == 0, full attenuation of the opposite channel at the extremes.
	return sig * (1 - pan), sig * (1 + pan)
}

// startRelease is invoked by NoteOff when no release envelope is configured:
// it arms the fallback linear ramp.
func (v *Voice) startRelease() {
	if v.Params.ReleaseEnvelope == nil {
		v.releaseRampLeft = v.releaseRampFrames
		v.releaseRampFrom = 1
	}
}

// Mix renders every active voice in the pool into out (interleaved stereo)
// over [start, stop) and reclaims any voice that finished during the slice.
func (p *Pool) Mix(out []float64, start, stop int, sampleRate float64) {
	p.Active(func(v *Voice) {
		v.Render(out, start, stop, sampleRate)
	})
	p.ReclaimFinished()
}
