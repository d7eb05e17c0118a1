// Package klog wraps github.com/charmbracelet/log for the engine's
// load-time, graph-construction and CLI diagnostics. It is never imported
// by anything on the audio render path (internal/voice, internal/graph's
// Process methods, internal/pattern's Advance) since allocation and I/O are
// off-limits there; klog belongs to project loading, graph preparation and
// cmd/kunquat-player.
//
// Grounded on the charmbracelet/log key=value call style used throughout
// other_examples' TTS queue (log.Debug("...", "key", value)).
package klog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the structured logger type every package that needs one holds.
type Logger = *log.Logger

// New creates a logger writing to stderr with the given reported subsystem
// name as its prefix, e.g. klog.New("project").
func New(subsystem string) Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: subsystem,
	})
	return l
}

// Discard is a logger that drops everything, used by default in tests and
// library call sites that have not configured a destination.
func Discard() Logger {
	l := log.New(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
