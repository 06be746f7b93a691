// Package camera serves the live MJPEG preview. The preview shares the camera
// device with recordings through recorder.Slot, so a clip and the preview never
// hold the device at the same time.
package camera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wachiwi/motioncam/pkg/recorder"
)

// OwnerStream is the Slot owner name while the preview holds the device.
const OwnerStream = "stream"

// pollInterval bounds how long the preview keeps the device after the gate closes.
const pollInterval = 100 * time.Millisecond

// Config holds the preview capture settings.
type Config struct {
	Device       string
	InputFormat  string
	Width        int
	Height       int
	FPS          int
	RetryBackoff time.Duration
}

// process is a running capture producing an MJPEG stream on stdout.
type process struct {
	stdout io.ReadCloser
	wait   func() error
}

type startFunc func(ctx context.Context, cfg Config) (*process, error)

// Source runs the capture process while the gate is open and keeps the latest frame.
type Source struct {
	cfg    Config
	slot   *recorder.Slot
	gate   Gate
	start  startFunc
	frames frameStore

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	wake    chan struct{}
}

// NewSource creates a preview source. Nothing is opened until Ensure is called.
func NewSource(cfg Config, slot *recorder.Slot, gate Gate) *Source {
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.FPS == 0 {
		cfg.FPS = 15
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &Source{
		cfg:   cfg,
		slot:  slot,
		gate:  gate,
		start: startCapture,
		wake:  make(chan struct{}, 1),
	}
}

// Config returns the effective capture settings.
func (s *Source) Config() Config { return s.cfg }

// Ensure starts the capture loop if the gate is open and it isn't running yet.
func (s *Source) Ensure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.gate.ShouldContinue() {
		return
	}
	s.running = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.loop()
			// An Ensure that raced the exit saw running == true; re-check under
			// the same lock so its request is not lost.
			s.mu.Lock()
			if !s.gate.ShouldContinue() {
				s.running = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
		}
	}()
}

// Interrupt makes the capture loop re-evaluate the gate now instead of at the
// next poll.
func (s *Source) Interrupt() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop interrupts the loop and waits until it has released the device. The
// gate must already be closed, otherwise Stop waits for ctx.
func (s *Source) Stop(ctx context.Context) error {
	s.Interrupt()
	return s.Wait(ctx)
}

// Running reports whether the capture loop is active.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Frame returns the latest JPEG frame.
func (s *Source) Frame() ([]byte, error) {
	return s.frames.latest()
}

// Wait blocks until the capture loop has exited or ctx is done.
func (s *Source) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) loop() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBackoff
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	for s.gate.ShouldContinue() {
		if !s.slot.TryAcquire(OwnerStream) {
			slog.Debug("Camera busy, preview waiting", "holder", s.slot.Holder())
			s.pause(b.NextBackOff())
			continue
		}

		started := time.Now()
		err := s.session()
		s.slot.Release()
		if err == nil {
			b.Reset()
			continue
		}

		slog.Warn("Live preview interrupted", "error", err)
		if time.Since(started) > 5*time.Second {
			b.Reset()
		}
		s.pause(b.NextBackOff())
	}
	slog.Info("Live preview stopped")
}

// session runs one capture process until the gate closes (nil) or the stream fails.
func (s *Source) session() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc, err := s.start(ctx, s.cfg)
	if err != nil {
		return err
	}

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- PumpFrames(proc.stdout, s.frames.set)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var streamErr error
	pumping := true
	for pumping {
		select {
		case streamErr = <-pumpDone:
			pumping = false
		case <-ticker.C:
		case <-s.wake:
		}
		if pumping && !s.gate.ShouldContinue() {
			cancel()
			proc.stdout.Close()
			<-pumpDone
			pumping = false
		}
	}

	cancel()
	proc.stdout.Close()
	waitErr := proc.wait()
	s.frames.clear()

	if streamErr == nil {
		return nil
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return errors.Join(streamErr, waitErr)
	}
	return streamErr
}

// pause sleeps for d, waking early once the gate closes.
func (s *Source) pause(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for s.gate.ShouldContinue() {
		select {
		case <-timer.C:
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}
