package recorder

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wachiwi/motioncam/pkg/clock"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	results []error
	block   chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		return err
	}
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testSettings() Settings {
	return Settings{
		Tool:        "ffmpeg",
		Device:      "/dev/video0",
		Width:       1920,
		Height:      1080,
		FPS:         30,
		InputFormat: "mjpeg",
		Seconds:     5,
		HWEncoder:   "h264_v4l2m2m",
		Bitrate:     "6M",
		SWEncoder:   "libx264",
		SWPreset:    "veryfast",
		SWCRF:       23,
	}
}

func newTestExecutor(r Runner, toolFound bool) *Executor {
	e := NewExecutor(testSettings(), r)
	e.lookPath = func(name string) (string, error) {
		if !toolFound {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + name, nil
	}
	return e
}

type clipRecorder struct {
	mu    sync.Mutex
	clips []Clip
}

func (c *clipRecorder) ClipSaved(clip Clip) {
	c.mu.Lock()
	c.clips = append(c.clips, clip)
	c.mu.Unlock()
}

func (c *clipRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

func TestClipNameRoundTrip(t *testing.T) {
	ts := time.Date(2025, 11, 3, 14, 5, 9, 0, time.Local)
	name := ClipName(ts)
	if name != "motion_20251103_140509.mp4" {
		t.Fatalf("ClipName = %q", name)
	}
	got, err := ParseClipName(name)
	if err != nil {
		t.Fatalf("ParseClipName: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
}

func TestParseClipNameRejects(t *testing.T) {
	for _, name := range []string{
		"",
		"motion_20251103_140509.avi",
		"clip_20251103_140509.mp4",
		"motion_2025-11-03.mp4",
		"motion_20251399_140509.mp4",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseClipName(name); !errors.Is(err, ErrBadClipName) {
				t.Errorf("ParseClipName(%q) error = %v, want ErrBadClipName", name, err)
			}
		})
	}
}

func TestSettingsArgs(t *testing.T) {
	s := testSettings()

	hw := s.Args(s.HardwareProfile(), "/tmp/out.mp4")
	wantPrefix := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "v4l2", "-framerate", "30", "-video_size", "1920x1080",
		"-input_format", "mjpeg", "-i", "/dev/video0", "-t", "5", "-pix_fmt", "yuv420p",
	}
	if !slices.Equal(hw[:len(wantPrefix)], wantPrefix) {
		t.Errorf("base args = %v", hw[:len(wantPrefix)])
	}
	if !slices.Equal(hw[len(wantPrefix):], []string{"-c:v", "h264_v4l2m2m", "-b:v", "6M", "/tmp/out.mp4"}) {
		t.Errorf("hardware codec args = %v", hw[len(wantPrefix):])
	}

	sw := s.Args(s.SoftwareProfile(), "/tmp/out.mp4")
	if !slices.Equal(sw[len(wantPrefix):], []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "/tmp/out.mp4"}) {
		t.Errorf("software codec args = %v", sw[len(wantPrefix):])
	}
}

func TestRecordCascade(t *testing.T) {
	capErr := &ExitError{Code: 1, Output: "encoder init failed"}

	tests := []struct {
		name        string
		toolFound   bool
		results     []error
		wantErr     error
		wantCalls   int
		wantProfile string
	}{
		{"hardware succeeds", true, nil, nil, 1, "hardware"},
		{"software fallback", true, []error{capErr}, nil, 2, "software"},
		{"both fail", true, []error{capErr, capErr}, ErrCaptureFailed, 2, ""},
		{"tool missing", false, nil, ErrToolUnavailable, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{results: tt.results}
			fake := clock.NewFake(time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local))
			o := NewOrchestrator(&Slot{}, newTestExecutor(runner, tt.toolFound), t.TempDir(), WithClock(fake))

			clip, err := o.Record(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Record error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if got := runner.callCount(); got != tt.wantCalls {
				t.Errorf("capture calls = %d, want %d", got, tt.wantCalls)
			}
			if clip.Profile != tt.wantProfile {
				t.Errorf("profile = %q, want %q", clip.Profile, tt.wantProfile)
			}
			if tt.wantErr == nil && clip.Name != "motion_20250102_030405.mp4" {
				t.Errorf("clip name = %q", clip.Name)
			}
		})
	}
}

func TestDispatchReleasesSlotAndNotifiesSinks(t *testing.T) {
	runner := &fakeRunner{}
	slot := &Slot{}
	sink := &clipRecorder{}
	o := NewOrchestrator(slot, newTestExecutor(runner, true), t.TempDir(), WithClipSink(sink))

	o.Dispatch()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if slot.Busy() {
		t.Error("slot still held after recording")
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d clips, want 1", sink.count())
	}
}

func TestDispatchFailureReleasesSlot(t *testing.T) {
	runner := &fakeRunner{results: []error{errors.New("hw"), errors.New("sw")}}
	slot := &Slot{}
	sink := &clipRecorder{}
	o := NewOrchestrator(slot, newTestExecutor(runner, true), t.TempDir(), WithClipSink(sink))

	o.Dispatch()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if slot.Busy() {
		t.Error("slot still held after failed recording")
	}
	if sink.count() != 0 {
		t.Errorf("sink received %d clips after total failure", sink.count())
	}
}

// panicOnce panics on its first capture and then behaves like next.
type panicOnce struct {
	fired atomic.Bool
	next  Runner
}

func (p *panicOnce) Run(ctx context.Context, name string, args ...string) error {
	if p.fired.CompareAndSwap(false, true) {
		panic("encoder crashed")
	}
	return p.next.Run(ctx, name, args...)
}

func TestDispatchPanicReleasesSlot(t *testing.T) {
	inner := &fakeRunner{}
	slot := &Slot{}
	sink := &clipRecorder{}
	o := NewOrchestrator(slot, newTestExecutor(&panicOnce{next: inner}, true), t.TempDir(), WithClipSink(sink))

	o.Dispatch()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if slot.Busy() {
		t.Fatalf("slot still held by %q after panic", slot.Holder())
	}
	if sink.count() != 0 {
		t.Fatalf("sink received %d clips from a crashed capture", sink.count())
	}

	o.Dispatch()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if inner.callCount() != 1 {
		t.Errorf("second dispatch ran capture %d times, want 1", inner.callCount())
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d clips after recovery, want 1", sink.count())
	}
	if slot.Busy() {
		t.Error("slot still held after second recording")
	}
}

func TestDispatchToolUnavailableReleasesSlot(t *testing.T) {
	runner := &fakeRunner{}
	slot := &Slot{}
	exec := newTestExecutor(runner, false)
	o := NewOrchestrator(slot, exec, t.TempDir())

	o.Dispatch()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if slot.Busy() {
		t.Fatal("slot still held after missing capture tool")
	}
	if runner.callCount() != 0 {
		t.Fatalf("capture ran %d times without a tool", runner.callCount())
	}

	exec.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	o.Dispatch()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.callCount() != 1 {
		t.Errorf("capture ran %d times once the tool appeared, want 1", runner.callCount())
	}
}

func TestDispatchIsNoopWhenSlotHeld(t *testing.T) {
	runner := &fakeRunner{}
	slot := &Slot{}
	if !slot.TryAcquire("stream") {
		t.Fatal("could not acquire fresh slot")
	}
	o := NewOrchestrator(slot, newTestExecutor(runner, true), t.TempDir())

	for i := 0; i < 10; i++ {
		o.Dispatch()
	}
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.callCount() != 0 {
		t.Errorf("capture ran %d times while slot held", runner.callCount())
	}
	if slot.Holder() != "stream" {
		t.Errorf("holder = %q, want stream", slot.Holder())
	}
}

func TestDispatchWaitsForYieldingHolder(t *testing.T) {
	runner := &fakeRunner{}
	slot := &Slot{}
	if !slot.TryAcquire("stream") {
		t.Fatal("could not acquire fresh slot")
	}
	o := NewOrchestrator(slot, newTestExecutor(runner, true), t.TempDir(),
		WithYieldingHolder("stream", 2*time.Second))

	o.Dispatch()
	time.Sleep(50 * time.Millisecond)
	slot.Release()
	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.callCount() != 1 {
		t.Errorf("capture ran %d times after the preview yielded, want 1", runner.callCount())
	}
	if slot.Busy() {
		t.Error("slot still held after recording")
	}
}

func TestDispatchDoesNotWaitForOtherHolders(t *testing.T) {
	runner := &fakeRunner{}
	slot := &Slot{}
	slot.TryAcquire(OwnerRecorder)
	o := NewOrchestrator(slot, newTestExecutor(runner, true), t.TempDir(),
		WithYieldingHolder("stream", time.Hour))

	o.Dispatch()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("dispatch blocked on a recorder-held slot: %v", err)
	}
	if runner.callCount() != 0 {
		t.Errorf("capture ran %d times while another recording held the slot", runner.callCount())
	}
}

func TestDispatchSingleFlight(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	o := NewOrchestrator(&Slot{}, newTestExecutor(runner, true), t.TempDir())

	o.Dispatch()
	deadline := time.Now().Add(2 * time.Second)
	for runner.active.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first recording never started")
		}
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Dispatch()
		}()
	}
	wg.Wait()
	close(runner.block)

	if err := o.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := runner.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent captures = %d, want 1", got)
	}
}

func TestSlot(t *testing.T) {
	var s Slot
	if s.Busy() || s.Holder() != "" {
		t.Fatal("zero slot should be free")
	}
	if !s.TryAcquire("a") {
		t.Fatal("first acquire failed")
	}
	if s.TryAcquire("b") {
		t.Fatal("second acquire succeeded")
	}
	if s.Holder() != "a" {
		t.Errorf("holder = %q", s.Holder())
	}
	s.Release()
	if !s.TryAcquire("b") {
		t.Fatal("acquire after release failed")
	}
}
