// Package dispatch turns raw motion edges into status updates, event log
// entries and, at most once per cooldown window, a recording.
package dispatch

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wachiwi/motioncam/pkg/clock"
	"github.com/wachiwi/motioncam/pkg/control"
	"github.com/wachiwi/motioncam/pkg/eventlog"
	"github.com/wachiwi/motioncam/pkg/telemetry"
)

// ModeSource reports the current operating mode.
type ModeSource interface {
	Mode() control.Mode
}

// Trigger starts a recording without blocking. *recorder.Orchestrator satisfies it.
type Trigger interface {
	Dispatch()
}

// EventQueue accepts events without blocking. *eventlog.Async satisfies it.
type EventQueue interface {
	Submit(eventlog.Event) bool
}

// Snapshot is a consistent copy of the dispatch state.
type Snapshot struct {
	LastMotion  string
	Interval    float64
	HasInterval bool
	EventCount  uint64
	Mode        control.Mode
}

// Dispatcher owns the dispatch state. All methods are safe for concurrent use.
type Dispatcher struct {
	clock    clock.Clock
	cooldown time.Duration
	modes    ModeSource
	trigger  Trigger
	events   EventQueue
	metrics  *telemetry.Metrics

	mu           sync.Mutex
	lastTrigger  time.Time
	hasTriggered bool
	lastMotion   string
	interval     float64
	hasInterval  bool
	count        uint64
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option { return func(d *Dispatcher) { d.clock = c } }

func WithEventQueue(q EventQueue) Option { return func(d *Dispatcher) { d.events = q } }

func WithMetrics(m *telemetry.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// New returns a Dispatcher that starts trigger in Record mode at most once per cooldown.
func New(cooldown time.Duration, modes ModeSource, trigger Trigger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clock:    clock.Real{},
		cooldown: cooldown,
		modes:    modes,
		trigger:  trigger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnMotion handles one sensor edge. The channel identifier is ignored. It
// returns as soon as the state is updated; recordings run in the background.
func (d *Dispatcher) OnMotion(channel int) {
	mode, fire := d.record()

	d.metrics.MotionDetected(context.Background(), mode.String())
	if !fire {
		return
	}
	d.metrics.Dispatched(context.Background())
	d.trigger.Dispatch()
}

// record applies one event to the state and decides whether it should start a
// recording. The event is queued for the log inside the critical section so
// log order matches state order.
func (d *Dispatcher) record() (control.Mode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	ev := eventlog.Event{At: now, Wall: now.Format(clock.DisplayLayout)}
	if d.count > 0 {
		ev.Interval, ev.HasInterval = roundSeconds(now.Sub(d.lastTrigger)), true
	}

	d.lastMotion = ev.Wall
	d.interval, d.hasInterval = ev.Interval, ev.HasInterval
	d.count++

	mode := d.modes.Mode()
	if ev.HasInterval {
		slog.Info("Motion detected", "interval", ev.Interval, "mode", mode)
	} else {
		slog.Info("Motion detected (first event)", "mode", mode)
	}
	if d.events != nil {
		d.events.Submit(ev)
	}

	if d.hasTriggered && now.Sub(d.lastTrigger) < d.cooldown {
		slog.Debug("Within cooldown, not recording", "since_trigger", now.Sub(d.lastTrigger))
		return mode, false
	}
	d.lastTrigger = now
	d.hasTriggered = true

	if mode != control.Record {
		slog.Debug("Stream mode, not recording")
		return mode, false
	}
	return mode, true
}

// Snapshot returns the latest state. The four fields are read together.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		LastMotion:  d.lastMotion,
		Interval:    d.interval,
		HasInterval: d.hasInterval,
		EventCount:  d.count,
		Mode:        d.modes.Mode(),
	}
}

// roundSeconds converts d to seconds at millisecond precision, clamped at zero.
func roundSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return math.Round(d.Seconds()*1000) / 1000
}
