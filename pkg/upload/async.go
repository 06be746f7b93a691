package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wachiwi/motioncam/pkg/recorder"
	"github.com/wachiwi/motioncam/pkg/telemetry"
)

// Async runs uploads on a fixed pool of workers. Enqueue never blocks.
type Async struct {
	up      Uploader
	jobs    chan string
	metrics *telemetry.Metrics
	timeout time.Duration

	mu       sync.RWMutex
	closed   bool
	onUpload []func(path string)
	wg       sync.WaitGroup
}

// NewAsync starts workers goroutines feeding up.
func NewAsync(up Uploader, workers, queueSize int, metrics *telemetry.Metrics) *Async {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	a := &Async{
		up:      up,
		jobs:    make(chan string, queueSize),
		metrics: metrics,
		timeout: 10 * time.Minute,
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// OnUploaded registers fn to run after each successful upload.
func (a *Async) OnUploaded(fn func(path string)) {
	a.mu.Lock()
	a.onUpload = append(a.onUpload, fn)
	a.mu.Unlock()
}

// Enqueue schedules path for upload. It reports false when the job was dropped.
func (a *Async) Enqueue(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.jobs <- path:
		return true
	default:
		slog.Warn("Upload queue full, dropping", "path", path)
		a.metrics.SinkError(context.Background(), "upload_queue")
		return false
	}
}

// ClipSaved queues a finished recording.
func (a *Async) ClipSaved(c recorder.Clip) {
	a.Enqueue(c.Path)
}

func (a *Async) worker() {
	defer a.wg.Done()
	for path := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		start := time.Now()
		err := a.up.Upload(ctx, path)
		cancel()
		if err != nil {
			slog.Error("Upload failed", "backend", a.up.Name(), "path", path, "error", err)
			a.metrics.SinkError(context.Background(), a.up.Name())
			continue
		}
		slog.Info("Uploaded", "backend", a.up.Name(), "path", path, "took", time.Since(start))

		a.mu.RLock()
		hooks := append([]func(string){}, a.onUpload...)
		a.mu.RUnlock()
		for _, fn := range hooks {
			fn(path)
		}
	}
}

// Close stops accepting jobs and waits for queued uploads or ctx.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
