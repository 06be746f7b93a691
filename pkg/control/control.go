// Package control holds the process-wide operating mode and the kill switch.
//
// Both are single-word flags read from the dispatch core, the live frame loop
// and the status surface. Neither participates in a compound invariant with the
// dispatch state, so plain atomics are enough.
package control

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode gates whether motion triggers a capture or the device serves a live preview.
type Mode int32

const (
	Record Mode = iota
	Stream
)

// ErrInvalidMode is returned when a mode string is outside {record, stream}.
var ErrInvalidMode = errors.New("invalid mode")

func (m Mode) String() string {
	switch m {
	case Record:
		return "record"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// ParseMode converts "record" or "stream" (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "record":
		return Record, nil
	case "stream":
		return Stream, nil
	}
	return Record, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Controller owns the mode and kill flag for the lifetime of the process.
type Controller struct {
	mode     atomic.Int32
	killed   atomic.Bool
	killOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	listeners []func(Mode)
}

// New returns a Controller in the given initial mode.
func New(initial Mode) *Controller {
	c := &Controller{done: make(chan struct{})}
	c.mode.Store(int32(initial))
	return c
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

// SetMode switches the mode for future evaluations. Recordings already in flight
// are not affected.
func (c *Controller) SetMode(m Mode) error {
	if m != Record && m != Stream {
		return fmt.Errorf("%w: %v", ErrInvalidMode, m)
	}
	prev := Mode(c.mode.Swap(int32(m)))
	if prev == m {
		return nil
	}

	c.mu.Lock()
	listeners := append([]func(Mode){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(m)
	}
	return nil
}

// SetModeString parses s and applies it. Invalid input leaves the mode untouched.
func (c *Controller) SetModeString(s string) error {
	m, err := ParseMode(s)
	if err != nil {
		return err
	}
	return c.SetMode(m)
}

// OnModeChange registers fn to be called after every effective mode switch.
func (c *Controller) OnModeChange(fn func(Mode)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// RequestKill flips the kill flag. It is one-way and idempotent.
func (c *Controller) RequestKill() {
	c.killOnce.Do(func() {
		c.killed.Store(true)
		close(c.done)
	})
}

// Killed reports whether a kill has been requested.
func (c *Controller) Killed() bool {
	return c.killed.Load()
}

// Done is closed once RequestKill has been called.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
