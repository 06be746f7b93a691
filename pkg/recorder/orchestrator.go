package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wachiwi/motioncam/pkg/clock"
	"github.com/wachiwi/motioncam/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OwnerRecorder is the Slot owner name used while a clip is being captured.
const OwnerRecorder = "recorder"

// ErrCaptureFailed means both encoder profiles failed.
var ErrCaptureFailed = errors.New("capture failed")

// Clip is a successfully produced recording.
type Clip struct {
	ID        string
	Name      string
	Path      string
	StartedAt time.Time
	Profile   string
	Took      time.Duration
}

// ClipSink receives every saved clip. ClipSaved runs on the recording goroutine
// before the slot is released, so slow work belongs on a queue.
type ClipSink interface {
	ClipSaved(Clip)
}

// ClipSinkFunc adapts a function to ClipSink.
type ClipSinkFunc func(Clip)

func (f ClipSinkFunc) ClipSaved(c Clip) { f(c) }

// Orchestrator wraps the Executor in single-flight semantics on a Slot and runs
// the hardware-then-software encoder cascade.
type Orchestrator struct {
	slot    *Slot
	exec    *Executor
	outDir  string
	clock   clock.Clock
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	onStart []func(id string)
	sinks   []ClipSink

	yieldOwner string
	yieldWait  time.Duration

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithMetrics(m *telemetry.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithClipSink adds a receiver for saved clips (upload, clip index).
func WithClipSink(s ClipSink) Option { return func(o *Orchestrator) { o.sinks = append(o.sinks, s) } }

// WithStartHook registers fn to run, without blocking the capture, when a capture begins.
func WithStartHook(fn func(id string)) Option {
	return func(o *Orchestrator) { o.onStart = append(o.onStart, fn) }
}

// WithYieldingHolder lets a recording wait up to wait for the slot while owner
// holds it. Use it for a holder that releases the device on its own once a
// recording becomes possible, such as the live preview after a switch to
// Record. Any other holder still makes the attempt a no-op.
func WithYieldingHolder(owner string, wait time.Duration) Option {
	return func(o *Orchestrator) {
		o.yieldOwner = owner
		o.yieldWait = wait
	}
}

// NewOrchestrator returns an Orchestrator writing clips into outDir.
func NewOrchestrator(slot *Slot, exec *Executor, outDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		slot:   slot,
		exec:   exec,
		outDir: outDir,
		clock:  clock.Real{},
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch starts a background recording attempt and returns immediately.
// If the camera slot is already held the attempt exits without doing anything.
func (o *Orchestrator) Dispatch() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx := context.Background()
		if !o.acquire() {
			slog.Info("Recording skipped, camera busy", "holder", o.slot.Holder())
			o.metrics.RecordingFinished(ctx, "busy", 0)
			return
		}
		defer o.slot.Release()
		o.run(ctx)
	}()
}

// acquire claims the slot, waiting only while the yielding holder has it.
func (o *Orchestrator) acquire() bool {
	if o.slot.TryAcquire(OwnerRecorder) {
		return true
	}
	if o.yieldWait <= 0 || o.slot.Holder() != o.yieldOwner {
		return false
	}

	deadline := time.NewTimer(o.yieldWait)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline.C:
			return false
		case <-tick.C:
		}
		if o.slot.TryAcquire(OwnerRecorder) {
			return true
		}
		if h := o.slot.Holder(); h != "" && h != o.yieldOwner {
			return false
		}
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recording task panicked", "panic", r)
			o.metrics.RecordingFinished(ctx, "failed", 0)
		}
	}()

	start := o.clock.Now()
	clip, err := o.Record(ctx)
	took := o.clock.Now().Sub(start)
	switch {
	case errors.Is(err, ErrToolUnavailable):
		slog.Error("Recording aborted", "error", err)
		o.metrics.RecordingFinished(ctx, "unavailable", took)
	case err != nil:
		slog.Error("Recording failed", "error", err)
		o.metrics.RecordingFinished(ctx, "failed", took)
	default:
		o.metrics.RecordingFinished(ctx, "saved", took)
		for _, s := range o.sinks {
			s.ClipSaved(clip)
		}
	}
}

// Record captures one clip. The caller must hold the Slot for the duration.
func (o *Orchestrator) Record(ctx context.Context) (Clip, error) {
	ctx, span := o.tracer.Start(ctx, "recorder.Record")
	defer span.End()

	if _, err := o.exec.Probe(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Clip{}, err
	}
	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Clip{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	started := o.clock.Now()
	clip := Clip{
		ID:        uuid.NewString(),
		Name:      ClipName(started),
		StartedAt: started,
	}
	clip.Path = filepath.Join(o.outDir, clip.Name)
	span.SetAttributes(attribute.String("clip.id", clip.ID), attribute.String("clip.name", clip.Name))

	settings := o.exec.Settings()
	slog.Info("Recording", "id", clip.ID, "seconds", settings.Seconds, "path", clip.Path)
	for _, fn := range o.onStart {
		go fn(clip.ID)
	}

	profile := settings.HardwareProfile()
	err := o.exec.Capture(ctx, profile, clip.Path)
	if err != nil {
		slog.Warn("Hardware encoder failed, falling back to software",
			"id", clip.ID, "encoder", settings.HWEncoder, "error", err)
		o.metrics.EncoderFallback(ctx)
		_ = os.Remove(clip.Path)

		profile = settings.SoftwareProfile()
		if err = o.exec.Capture(ctx, profile, clip.Path); err != nil {
			_ = os.Remove(clip.Path)
			span.SetStatus(codes.Error, err.Error())
			return Clip{}, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, clip.Name, err)
		}
	}

	clip.Profile = profile.Name
	clip.Took = o.clock.Now().Sub(started)
	slog.Info("Saved", "id", clip.ID, "path", clip.Path, "profile", clip.Profile)
	return clip, nil
}

// Wait blocks until all dispatched attempts finish or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
