// Command kunquat-player is the reference CLI front-end for package
// kunquat (spec §6): load a project, optionally seek, mix it in fixed
// slices and push the result to an audio driver.
//
// Grounded on the teacher's cmd/play_mml's flag-parse/load/render loop
// shape, reworked onto spf13/pflag for the spec's mixed short/long flag
// set and onto kunquat.Handle instead of the MML Player facade.
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/kunquat/kunquat-go"
	"github.com/kunquat/kunquat-go/internal/audio"
	"github.com/kunquat/kunquat-go/internal/klog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("kunquat-player", pflag.ContinueOnError)
	driver := fs.StringP("driver", "d", "oto", "audio driver (only \"oto\" is available)")
	bufferSize := fs.Int("buffer-size", 2048, "mix buffer size in frames [64, 262144]")
	frequency := fs.Int("frequency", 48000, "output sample rate in Hz [1000, 384000]")
	subsong := fs.StringP("subsong", "s", "all", "subsong index, or \"all\"")
	quiet := fs.BoolP("quiet", "q", false, "suppress the status line")
	disableUnicode := fs.Bool("disable-unicode", false, "use an ASCII status line instead of Unicode")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: kunquat-player [flags] project.yaml\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := klog.New("kunquat-player")

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	path := fs.Arg(0)

	if *bufferSize < 64 || *bufferSize > 262144 {
		log.Error("invalid --buffer-size", "value", *bufferSize)
		return 1
	}
	if *frequency < 1000 || *frequency > 384000 {
		log.Error("invalid --frequency", "value", *frequency)
		return 1
	}
	if *driver != "oto" {
		log.Error("driver not available", "driver", *driver)
		return 1
	}

	h, err := kunquat.NewHandle(path, *bufferSize)
	if err != nil {
		log.Error("failed to open project", "path", path, "err", err)
		return 1
	}
	defer h.DelHandle()

	subsongIdx, err := parseSubsong(*subsong)
	if err != nil {
		log.Error("invalid --subsong", "value", *subsong, "err", err)
		return 1
	}
	if subsongIdx >= 0 {
		if err := h.SetPosition(subsongIdx, 0); err != nil {
			log.Error("failed to seek", "err", err)
			return 1
		}
	}

	src := &handleSource{h: h, rate: float64(*frequency)}
	player, err := audio.NewPlayer(*frequency, src)
	if err != nil {
		log.Error("failed to open audio driver", "driver", *driver, "err", err)
		return 1
	}
	defer player.Stop()

	if !*quiet {
		printStatus(*disableUnicode, 0)
	}
	player.Play()

	for !src.Finished() {
		if !*quiet {
			printStatus(*disableUnicode, src.emitted())
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !*quiet {
		fmt.Println()
	}
	return 0
}

func parseSubsong(s string) (int, error) {
	if s == "all" {
		return -1, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative subsong %d", n)
	}
	return n, nil
}

func printStatus(asciiOnly bool, frames int64) {
	bar := "█"
	if asciiOnly {
		bar = "#"
	}
	fmt.Printf("\r%s %d frames", bar, frames)
}

// handleSource pulls interleaved stereo float32 frames out of a
// kunquat.Handle, the audio.SampleSource contract a real-time driver pulls
// from. Grounded on internal/audio's SampleSource/FinishingSource split.
type handleSource struct {
	h    *kunquat.Handle
	rate float64

	mu            sync.Mutex
	framesEmitted int64
	done          bool
}

func (s *handleSource) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	nframes := len(dst) / 2
	produced, err := s.h.Mix(nframes, s.rate)
	if err != nil || produced == 0 {
		s.done = true
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	left := s.h.GetBuffer(0)
	right := s.h.GetBuffer(1)
	for i := 0; i < produced; i++ {
		var l, r float32
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		dst[2*i] = l
		dst[2*i+1] = r
	}
	for i := produced; i < nframes; i++ {
		dst[2*i] = 0
		dst[2*i+1] = 0
	}
	s.framesEmitted += int64(produced)
	if produced < nframes {
		s.done = true
	}
}

func (s *handleSource) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *handleSource) emitted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesEmitted
}
