// Package kunquat is the runtime facade embedders link against (spec §6):
// load a project, position playback, and mix fixed-size slices of audio
// out of it. It wires together every internal component — project, graph,
// pattern, dispatch, voice, devstate — into the single Handle type real
// callers (and cmd/kunquat-player) hold.
//
// Parsing Kunquat's own on-disk project format (p_*.json / p_sample.wv) is
// out of scope per spec §1; NewHandle loads the YAML fixture shape
// internal/project defines instead, the same contract an on-disk loader
// would populate.
package kunquat

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/kunquat/kunquat-go/internal/bind"
	"github.com/kunquat/kunquat-go/internal/devstate"
	"github.com/kunquat/kunquat-go/internal/dispatch"
	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/graph"
	"github.com/kunquat/kunquat-go/internal/klog"
	"github.com/kunquat/kunquat-go/internal/pattern"
	"github.com/kunquat/kunquat-go/internal/project"
	"github.com/kunquat/kunquat-go/internal/scale"
	"github.com/kunquat/kunquat-go/internal/tstamp"
	"github.com/kunquat/kunquat-go/internal/voice"
)

// ErrKind classifies a Handle's last error, spec §7.
type ErrKind int

const (
	ErrFormat ErrKind = iota
	ErrResource
	ErrArgument
	ErrState
)

func (k ErrKind) String() string {
	switch k {
	case ErrFormat:
		return "format"
	case ErrResource:
		return "resource"
	case ErrArgument:
		return "argument"
	case ErrState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every Handle operation attaches to
// itself (spec §7: "errors are attached to the handle"). Op names the
// failing operation; Err carries the underlying cause.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("kunquat: %s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("kunquat: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// minBufferSize and maxBufferSize bound the CLI --buffer-size flag and
// NewHandle's bufferSize argument, spec §6.
const (
	minBufferSize = 64
	maxBufferSize = 262144
)

// defaultAssumedRate is used to convert SetPosition's nanosecond offsets
// and GetDuration's totals to/from Tstamp before any Mix call has supplied
// a real rate. Mix itself always renders at its own rate argument; this
// default only affects pre-roll position bookkeeping.
const defaultAssumedRate = 44100.0

// instrumentRack bridges internal/dispatch's VoiceAcquirer contract to a
// set of per-instrument voice pools, and lets an embedder attach decoded
// sample data (p_sample.wv decoding itself is out of scope, spec §1) and a
// tuning table.
type instrumentRack struct {
	pools   map[int]*voice.Pool
	samples map[int]*voice.Sample
	scales  map[int]*scale.Scale
}

// NoteOn resolves a note-on's pitch argument to Hz and acquires a voice.
// With no scale attached to the instrument, pitchHz is used directly (the
// common case: cn+'s argument already carries a reference-pitch-relative
// Hz value). With a scale attached, pitchHz is instead read as a note
// index into that instrument's tuning table (spec §4.4), resolved at the
// scale's reference octave with no modifier, letting a project declare a
// non-12-TET scale per instrument.
func (r *instrumentRack) NoteOn(channel, instrument int, pitchHz float64) (voice.ID, bool) {
	pool, ok := r.pools[instrument]
	if !ok {
		return 0, false
	}
	v, ok := pool.Acquire(uint32(channel), voice.PriorityForeground)
	if !ok {
		return 0, false
	}
	if s, ok := r.scales[instrument]; ok {
		if hz, err := s.Pitch(int(pitchHz), -1, s.RefOctave); err == nil {
			pitchHz = hz
		}
	}
	v.Params.BasePitchHz = pitchHz
	if samp, ok := r.samples[instrument]; ok {
		v.Params.Sample = samp
	}
	return v.ID(), true
}

func (r *instrumentRack) NoteOff(id voice.ID) {
	for _, pool := range r.pools {
		if v, ok := pool.Lookup(id); ok {
			v.NoteOff()
			return
		}
	}
}

// nullSink drops every event the dispatcher forwards to its Sink: master
// and general events, processor parameter sets (spec §4.9's
// CategoryProcessor kind) and voice parameter sets. Device-state parameter application is out of
// scope for this facade; a real embedder would supply a Sink that writes
// into internal/devstate.
type nullSink struct{}

func (nullSink) Apply(channel int, ev event.Event) error { return nil }

// Handle is one open playback session: a loaded project, its prepared
// device graph, and the pattern/dispatch/voice state needed to mix audio
// from it. The zero value is not usable; construct with NewHandle.
type Handle struct {
	mu sync.Mutex

	proj *project.Project
	g    *graph.Graph
	rack *instrumentRack
	disp *dispatch.Dispatcher
	devs *devstate.Registry

	masterDevice string
	masterLeft   string
	masterRight  string

	song        []project.SongEntry
	songIdx     int
	repeatsLeft int
	player      *pattern.Player

	bufferSize int
	tornDown   bool

	lastErr *Error
	log     klog.Logger

	minAmp, maxAmp float64
	clippedL       bool
	clippedR       bool
}

// NewHandle loads the project fixture at path and prepares a playback
// session with the given mix buffer size (frames), spec §6's
// new_handle(path, buffer_size).
func NewHandle(path string, bufferSize int) (*Handle, error) {
	if bufferSize < minBufferSize || bufferSize > maxBufferSize {
		return nil, newError(ErrArgument, "new_handle", fmt.Errorf("buffer size %d out of range [%d, %d]", bufferSize, minBufferSize, maxBufferSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(ErrResource, "new_handle", err)
	}

	proj, err := project.LoadFixtureYAML(data)
	if err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}

	h, cerr := newHandleFromProject(proj, bufferSize)
	if cerr != nil {
		return nil, cerr
	}
	h.log = klog.New("kunquat")
	return h, nil
}

func newHandleFromProject(proj *project.Project, bufferSize int) (*Handle, *Error) {
	g, pools, err := buildGraph(proj)
	if err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}
	if err := g.Prepare(bufferSize); err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}

	binds, err := project.BuildBinds(proj.Binds)
	if err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}

	masterDevice, left, right, err := findMaster(proj)
	if err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}

	rack := &instrumentRack{pools: pools, samples: make(map[int]*voice.Sample), scales: make(map[int]*scale.Scale)}
	cache := bind.NewCache(nil)

	devs := devstate.New()
	for _, d := range proj.Devices {
		devs.AddDevice(d.ID, 1)
	}
	devs.SetBufferSize(bufferSize)
	devs.SetTempo(proj.Tempo)

	h := &Handle{
		proj:         proj,
		g:            g,
		rack:         rack,
		disp:         dispatch.New(proj.Channels, binds, cache, rack, nullSink{}),
		devs:         devs,
		masterDevice: masterDevice,
		masterLeft:   left,
		masterRight:  right,
		song:         proj.Song,
		bufferSize:   bufferSize,
		log:          klog.Discard(),
	}

	if len(h.song) == 0 {
		return nil, newError(ErrFormat, "new_handle", fmt.Errorf("project has an empty song order"))
	}
	if err := h.loadSongEntry(0); err != nil {
		return nil, newError(ErrFormat, "new_handle", err)
	}

	return h, nil
}

// findMaster locates the session's master device: the project's one
// "mix"-typed device, whose declared output ports (if any) are the final
// L/R buffers GetBuffer reads from.
func findMaster(proj *project.Project) (device, left, right string, err error) {
	for _, d := range proj.Devices {
		if d.Type == "mix" {
			l, r := "", ""
			if len(d.OutPorts) > 0 {
				l = d.OutPorts[0]
			}
			if len(d.OutPorts) > 1 {
				r = d.OutPorts[1]
			}
			return d.ID, l, r, nil
		}
	}
	return "", "", "", fmt.Errorf("no master (\"mix\") device declared")
}

func (h *Handle) loadSongEntry(idx int) error {
	entry := h.song[idx]
	def := h.proj.PatternByID(entry.PatternID)
	if def == nil {
		return fmt.Errorf("song entry %d references unknown pattern %q", idx, entry.PatternID)
	}
	pat, err := project.BuildPattern(def)
	if err != nil {
		return err
	}
	h.songIdx = idx
	h.repeatsLeft = entry.Repeat
	if h.repeatsLeft <= 0 {
		h.repeatsLeft = 1
	}
	tempo := h.proj.Tempo
	if h.player != nil {
		tempo = h.player.Tempo()
	}
	h.player = pattern.NewPlayer(pat, tempo)
	return nil
}

// advanceSongOrder moves to the next repeat or song entry once the current
// pattern finishes. Returns false once the whole song order is exhausted.
func (h *Handle) advanceSongOrder() bool {
	h.repeatsLeft--
	if h.repeatsLeft > 0 {
		def := h.proj.PatternByID(h.song[h.songIdx].PatternID)
		rebuilt, err := project.BuildPattern(def)
		if err != nil {
			return false
		}
		h.player = pattern.NewPlayer(rebuilt, h.player.Tempo())
		return true
	}
	next := h.songIdx + 1
	if next >= len(h.song) {
		return false
	}
	if err := h.loadSongEntry(next); err != nil {
		return false
	}
	return true
}

// SetPosition seeks playback to ns nanoseconds into the given subsong,
// spec §6's set_position(subsong, ns). Only subsong 0 is meaningful: this
// facade's in-memory project model carries a single song order (spec §1
// scopes multi-subsong selection to the on-disk loader).
func (h *Handle) SetPosition(subsong int, ns int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tornDown {
		return h.fail(newError(ErrState, "set_position", fmt.Errorf("handle torn down")))
	}
	if subsong < 0 {
		return h.fail(newError(ErrArgument, "set_position", fmt.Errorf("negative subsong %d", subsong)))
	}
	if ns < 0 {
		return h.fail(newError(ErrArgument, "set_position", fmt.Errorf("negative position %d", ns)))
	}

	if err := h.loadSongEntry(0); err != nil {
		return h.fail(newError(ErrFormat, "set_position", err))
	}

	remaining := nsToTstamp(ns, h.player.Tempo())
	for {
		def := h.proj.PatternByID(h.song[h.songIdx].PatternID)
		patLen := tstamp.New(def.LengthBeats, def.LengthRem)
		if remaining.Cmp(patLen) < 0 {
			h.player.Seek(remaining)
			return nil
		}
		remaining = remaining.Sub(patLen)
		if !h.advanceSongOrder() {
			// Position is past the end of the song; park at the final
			// pattern's end so Mix immediately reports playback finished.
			h.player.Seek(patLen)
			return nil
		}
	}
}

// nsToTstamp converts a nanosecond offset to a Tstamp at the given tempo
// using the default assumed rate, for position bookkeeping done before a
// real Mix rate is known.
func nsToTstamp(ns int64, tempo float64) tstamp.Tstamp {
	frames := int64(float64(ns) * defaultAssumedRate / 1e9)
	return tstamp.FromFrames(frames, tempo, int64(defaultAssumedRate))
}

// GetDuration returns the total playback duration of the song order in
// nanoseconds, summing each entry's pattern length times its repeat count
// at the project's declared tempo and the default assumed rate.
func (h *Handle) GetDuration() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var total tstamp.Tstamp
	for _, entry := range h.song {
		def := h.proj.PatternByID(entry.PatternID)
		if def == nil {
			continue
		}
		length := tstamp.New(def.LengthBeats, def.LengthRem)
		repeat := entry.Repeat
		if repeat <= 0 {
			repeat = 1
		}
		for i := 0; i < repeat; i++ {
			total = total.Add(length)
		}
	}
	frames := tstamp.ToFrames(total, h.proj.Tempo, int64(defaultAssumedRate))
	return int64(float64(frames) * 1e9 / defaultAssumedRate)
}

// Mix renders up to nframes frames at the given sample rate, returning the
// number of frames actually produced, spec §6's mix(nframes, rate) ->
// frames_produced. A request above the handle's buffer size is capped to
// that size; fewer frames than that are produced only once the song order
// is exhausted or playback stalls on repeated zero-length slices.
func (h *Handle) Mix(nframes int, rate float64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tornDown {
		return 0, h.fail(newError(ErrState, "mix", fmt.Errorf("handle torn down")))
	}
	if nframes <= 0 || rate <= 0 {
		return 0, h.fail(newError(ErrArgument, "mix", fmt.Errorf("invalid nframes=%d rate=%g", nframes, rate)))
	}
	if nframes > h.bufferSize {
		nframes = h.bufferSize
	}

	produced := 0
	ctx := context.Background()
	h.minAmp, h.maxAmp = math.Inf(1), math.Inf(-1)
	h.clippedL, h.clippedR = false, false
	h.devs.SetAudioRate(rate)
	h.devs.SetTempo(h.player.Tempo())

	// Bounds re-entry on zero-length Advance results (legitimate right
	// after a jump or at a pattern-delay boundary per pattern.Player's
	// contract) so a pathological project can't hang Mix forever.
	const maxDeadIterations = 4096
	deadIterations := 0
	for produced < nframes {
		remaining := tstamp.FromFrames(int64(nframes-produced), h.player.Tempo(), int64(rate))
		slice, err := h.player.Advance(h.disp, remaining)
		if err != nil {
			return produced, h.fail(newError(ErrState, "mix", err))
		}
		sliceFrames := int(tstamp.ToFrames(slice, h.player.Tempo(), int64(rate)))
		if sliceFrames <= 0 {
			if h.player.Finished() {
				if !h.advanceSongOrder() {
					break
				}
				deadIterations = 0
				continue
			}
			deadIterations++
			if deadIterations > maxDeadIterations {
				break
			}
			continue
		}
		deadIterations = 0

		if err := h.g.Mix(ctx, produced, produced+sliceFrames, rate, h.player.Tempo()); err != nil {
			return produced, h.fail(newError(ErrState, "mix", err))
		}
		h.player.Seek(slice)
		produced += sliceFrames

		if h.player.Finished() {
			if !h.advanceSongOrder() {
				break
			}
		}
	}

	h.scanAmplitude(produced)
	return produced, nil
}

func (h *Handle) scanAmplitude(produced int) {
	left := h.bufferLocked(0)
	right := h.bufferLocked(1)
	scan := func(data []float32, clipped *bool) {
		for i := 0; i < produced && i < len(data); i++ {
			v := float64(data[i])
			if v < h.minAmp {
				h.minAmp = v
			}
			if v > h.maxAmp {
				h.maxAmp = v
			}
			if v > 1 || v < -1 {
				*clipped = true
			}
		}
	}
	scan(left, &h.clippedL)
	scan(right, &h.clippedR)
	if math.IsInf(h.minAmp, 1) {
		h.minAmp, h.maxAmp = 0, 0
	}
}

func (h *Handle) bufferLocked(channel int) []float32 {
	var port string
	switch channel {
	case 0:
		port = h.masterLeft
	case 1:
		port = h.masterRight
	default:
		return nil
	}
	if port == "" {
		return nil
	}
	if b := h.g.Output(h.masterDevice, port); b != nil {
		return b.Data()
	}
	return nil
}

// GetBuffer returns the rendered samples for channel (0 = left, 1 = right)
// from the most recent Mix call, or nil for any other channel.
func (h *Handle) GetBuffer(channel int) []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bufferLocked(channel)
}

// GetClipped reports whether channel's most recently mixed slice contained
// any sample outside [-1, 1].
func (h *Handle) GetClipped(channel int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch channel {
	case 0:
		return h.clippedL
	case 1:
		return h.clippedR
	default:
		return false
	}
}

// GetMinAmplitude returns the lowest sample value seen across both
// channels during the most recent Mix call.
func (h *Handle) GetMinAmplitude() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.minAmp
}

// GetMaxAmplitude returns the highest sample value seen across both
// channels during the most recent Mix call.
func (h *Handle) GetMaxAmplitude() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxAmp
}

// SetInstrumentSample attaches decoded sample data to an instrument index
// (the "instrument-N" device naming convention), the piece p_sample.wv
// decoding would supply on a real on-disk project (out of scope, spec §1).
func (h *Handle) SetInstrumentSample(instrument int, sample *voice.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rack.samples[instrument] = sample
}

// SetInstrumentScale attaches a tuning table to an instrument (spec §4.4);
// subsequent note-on pitches on that instrument are interpreted as note
// indices into s rather than as direct Hz values.
func (h *Handle) SetInstrumentScale(instrument int, s *scale.Scale) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rack.scales[instrument] = s
}

// DelHandle tears down the session. Any call on h after DelHandle returns
// a state error, spec §6's del_handle.
func (h *Handle) DelHandle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tornDown = true
}

// Err returns the last error attached to the handle, or nil if the most
// recent operation succeeded.
func (h *Handle) Err() *Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handle) fail(err *Error) *Error {
	h.lastErr = err
	h.log.Error(err.Op, "kind", err.Kind.String(), "err", err.Err)
	return err
}
