// Package eventlog persists motion events. Every detected event is written,
// whether or not it started a recording.
package eventlog

import (
	"context"
	"strconv"
	"time"
)

// Event is one detected motion edge.
type Event struct {
	At          time.Time
	Wall        string
	Interval    float64
	HasInterval bool
}

// IntervalString formats the interval the way the CSV log stores it. An absent
// interval is written as "None".
func (e Event) IntervalString() string {
	if !e.HasInterval {
		return "None"
	}
	return strconv.FormatFloat(e.Interval, 'f', -1, 64)
}

// Sink stores events. Write is called from a single goroutine per sink.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
	Close() error
}
