package eventlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wachiwi/motioncam/pkg/telemetry"
)

// Async fans events out to sinks on a single background goroutine, so events
// reach every sink in submission order. Submit never blocks; when the queue
// is full the event is dropped and logged.
type Async struct {
	sinks   []Sink
	queue   chan Event
	metrics *telemetry.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	sinkOnce  sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsync starts the writer goroutine. size is the queue capacity.
func NewAsync(size int, metrics *telemetry.Metrics, sinks ...Sink) *Async {
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		ctx:     ctx,
		cancel:  cancel,
		sinks:   sinks,
		queue:   make(chan Event, size),
		metrics: metrics,
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Submit enqueues ev. It reports false when the event was dropped.
func (a *Async) Submit(ev Event) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- ev:
		return true
	default:
		slog.Warn("Event log queue full, dropping event", "timestamp", ev.Wall)
		a.metrics.SinkError(context.Background(), "queue")
		return false
	}
}

func (a *Async) loop() {
	defer close(a.done)
	ctx := a.ctx
	for ev := range a.queue {
		if ctx.Err() != nil {
			continue
		}
		for _, s := range a.sinks {
			if err := s.Write(ctx, ev); err != nil {
				slog.Error("Failed to write motion event", "sink", s.Name(), "error", err)
				a.metrics.SinkError(ctx, s.Name())
			}
		}
	}
}

// Close stops accepting events, drains the queue and closes the sinks. If ctx
// ends first the in-flight write is cancelled, the remaining events are
// abandoned and the sinks are still closed.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	var err error
	select {
	case <-a.done:
	case <-ctx.Done():
		err = ctx.Err()
		a.cancel()
		<-a.done
		slog.Warn("Event log closed before the queue drained", "dropped", len(a.queue))
	}
	a.cancel()

	a.sinkOnce.Do(func() {
		for _, s := range a.sinks {
			if err := s.Close(); err != nil {
				slog.Warn("Failed to close event sink", "sink", s.Name(), "error", err)
			}
		}
	})
	return err
}
