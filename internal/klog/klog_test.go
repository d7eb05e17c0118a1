package klog

import "testing"

func TestNewAndDiscardDoNotPanic(t *testing.T) {
	l := New("test")
	l.Info("hello", "key", 1)

	d := Discard()
	d.Info("swallowed", "key", 2)
}
