package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wachiwi/motioncam/pkg/control"
	"github.com/wachiwi/motioncam/pkg/dispatch"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeState struct {
	snap dispatch.Snapshot
}

func (f *fakeState) Snapshot() dispatch.Snapshot { return f.snap }

func newStatus(t *testing.T, snap dispatch.Snapshot, mode control.Mode) (*StatusHandler, *control.Controller) {
	t.Helper()
	ctrl := control.New(mode)
	snap.Mode = mode
	return &StatusHandler{
		State:      &fakeState{snap: snap},
		Control:    ctrl,
		GraphFile:  filepath.Join(t.TempDir(), "graph.png"),
		TemplateFS: os.DirFS(".."),
	}, ctrl
}

func serve(method, path string, register func(r *gin.Engine)) *httptest.ResponseRecorder {
	r := gin.New()
	register(r)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestDataBeforeFirstEvent(t *testing.T) {
	h, _ := newStatus(t, dispatch.Snapshot{}, control.Record)
	w := serve("GET", "/data", func(r *gin.Engine) { r.GET("/data", h.Data) })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["last_motion_timestamp"] != nil || got["last_motion_delta"] != nil {
		t.Errorf("expected null fields, got %v", got)
	}
	if got["motion_event_count"] != float64(0) || got["current_mode"] != "record" {
		t.Errorf("unexpected body %v", got)
	}
}

func TestDataAfterEvents(t *testing.T) {
	h, _ := newStatus(t, dispatch.Snapshot{
		LastMotion:  "2025-01-02 03:04:05",
		Interval:    12.5,
		HasInterval: true,
		EventCount:  3,
	}, control.Stream)
	w := serve("GET", "/data", func(r *gin.Engine) { r.GET("/data", h.Data) })

	var got statusJSON
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.LastMotion == nil || *got.LastMotion != "2025-01-02 03:04:05" {
		t.Errorf("last motion = %v", got.LastMotion)
	}
	if got.LastDelta == nil || *got.LastDelta != 12.5 {
		t.Errorf("delta = %v", got.LastDelta)
	}
	if got.EventCount != 3 || got.CurrentMode != "stream" {
		t.Errorf("got %+v", got)
	}
}

func TestSetMode(t *testing.T) {
	h, ctrl := newStatus(t, dispatch.Snapshot{}, control.Record)
	register := func(r *gin.Engine) { r.GET("/mode/:mode", h.SetMode) }

	w := serve("GET", "/mode/STREAM", register)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("status = %d location = %q", w.Code, w.Header().Get("Location"))
	}
	if ctrl.Mode() != control.Stream {
		t.Fatalf("mode = %v, want stream", ctrl.Mode())
	}

	w = serve("GET", "/mode/banana", register)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid mode: banana") {
		t.Errorf("body = %q", w.Body.String())
	}
	if ctrl.Mode() != control.Stream {
		t.Errorf("invalid mode changed state to %v", ctrl.Mode())
	}
}

func TestKill(t *testing.T) {
	h, ctrl := newStatus(t, dispatch.Snapshot{}, control.Record)
	w := serve("GET", "/kill", func(r *gin.Engine) { r.GET("/kill", h.Kill) })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !ctrl.Killed() {
		t.Error("kill flag not set")
	}
	select {
	case <-ctrl.Done():
	default:
		t.Error("Done not closed after kill")
	}
}

func TestGraph(t *testing.T) {
	h, _ := newStatus(t, dispatch.Snapshot{}, control.Record)
	register := func(r *gin.Engine) { r.GET("/graph", h.Graph) }

	if w := serve("GET", "/graph", register); w.Code != http.StatusNotFound {
		t.Fatalf("missing graph: status = %d, want 404", w.Code)
	}

	png := []byte("\x89PNG\r\n\x1a\nfake")
	if err := os.WriteFile(h.GraphFile, png, 0644); err != nil {
		t.Fatal(err)
	}
	w := serve("GET", "/graph", register)
	if w.Code != http.StatusOK || w.Body.String() != string(png) {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestIndexRendersDashboard(t *testing.T) {
	h, _ := newStatus(t, dispatch.Snapshot{EventCount: 7}, control.Stream)
	w := serve("GET", "/", func(r *gin.Engine) { r.GET("/", h.Index) })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `src="/livestream"`) {
		t.Error("stream mode page is missing the live preview")
	}
}

type fakeFrames struct {
	frame   []byte
	fail    int
	served  atomic.Int32
	ensured atomic.Int32
	after   func(n int32)
}

func (f *fakeFrames) Ensure() { f.ensured.Add(1) }

func (f *fakeFrames) Frame() ([]byte, error) {
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("no frame yet")
	}
	n := f.served.Add(1)
	if f.after != nil {
		f.after(n)
	}
	return f.frame, nil
}

type flagGate struct{ open atomic.Bool }

func (g *flagGate) ShouldContinue() bool { return g.open.Load() }

func TestStreamForbiddenOutsideStreamMode(t *testing.T) {
	h := &CameraHandler{Source: &fakeFrames{}, Gate: &flagGate{}, FPS: 1000}
	w := serve("GET", "/livestream", func(r *gin.Engine) { r.GET("/livestream", h.Stream) })

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "STREAM mode") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStreamStopsWhenGateCloses(t *testing.T) {
	gate := &flagGate{}
	gate.open.Store(true)
	src := &fakeFrames{frame: []byte("JPEGDATA"), fail: 2}
	src.after = func(n int32) {
		if n == 3 {
			gate.open.Store(false)
		}
	}
	h := &CameraHandler{Source: src, Gate: gate, FPS: 1000, RetryBackoff: 1}

	w := serve("GET", "/livestream", func(r *gin.Engine) { r.GET("/livestream", h.Stream) })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("content type = %q", ct)
	}
	if got := strings.Count(w.Body.String(), "--frame\r\n"); got != 3 {
		t.Errorf("frames written = %d, want 3", got)
	}
	if !strings.Contains(w.Body.String(), "Content-Length: 8\r\n\r\nJPEGDATA\r\n") {
		t.Errorf("malformed part: %q", w.Body.String())
	}
	// Once up front and once per failed frame.
	if got := src.ensured.Load(); got != 3 {
		t.Errorf("Ensure calls = %d, want 3", got)
	}
}

func TestClipsServe(t *testing.T) {
	dir := t.TempDir()
	name := "motion_20250102_030405.mp4"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	h := &ClipsHandler{Dir: dir}
	register := func(r *gin.Engine) { r.GET("/clips/:name", h.Serve) }

	if w := serve("GET", "/clips/"+name, register); w.Code != http.StatusOK || w.Body.String() != "video" {
		t.Errorf("clip: status = %d body = %q", w.Code, w.Body.String())
	}
	for _, p := range []string{"/clips/secret.txt", "/clips/motion_20250102_030406.mp4"} {
		if w := serve("GET", p, register); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, w.Code)
		}
	}
}
