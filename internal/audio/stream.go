// Package audio turns a pull-based sample source into a playing device
// stream via ebitengine/oto, the lower-level PCM driver spec §4
// DOMAIN STACK wires in behind cmd/kunquat-player's "-d oto" default.
//
// Grounded on the teacher's original stream reader (io.Reader over a
// SampleSource, float32 interleaved stereo), adapted from the teacher's
// ebiten/v2/audio wrapper to call oto/v3 directly, since nothing else in
// this module needs ebiten's full game-loop package.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SampleSource is pulled for interleaved stereo float32 frames on demand.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has
// ended. When Finished returns true, the stream returns io.EOF on the next
// Read, letting oto stop the player on its own.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader adapts a SampleSource to io.Reader, the shape oto.NewPlayer
// wants: raw little-endian float32 stereo bytes.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8 // 2 channels * 4 bytes/float32
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

// Player wraps one oto.Player bound to a StreamReader.
type Player struct {
	player *oto.Player
	reader io.ReadCloser
}

var (
	contextOnce sync.Once
	context     *oto.Context
	contextErr  error
	contextRate int
)

func sharedContext(sampleRate int) (*oto.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			contextErr = err
			return
		}
		<-ready
		context = ctx
	})
	if contextErr != nil {
		return nil, contextErr
	}
	if contextRate != sampleRate {
		return nil, fmt.Errorf("audio: context already initialized at %d Hz (requested %d Hz)", contextRate, sampleRate)
	}
	return context, nil
}

// NewPlayer opens (once per process) the oto driver at sampleRate and
// returns a Player pulling frames from source.
func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	return &Player{
		player: ctx.NewPlayer(reader),
		reader: reader,
	}, nil
}

func (p *Player) Play()             { p.player.Play() }
func (p *Player) Pause()            { p.player.Pause() }
func (p *Player) IsPlaying() bool   { return p.player.IsPlaying() }
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
