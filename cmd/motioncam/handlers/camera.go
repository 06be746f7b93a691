package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// FrameSource is the live preview. *camera.Source satisfies it.
type FrameSource interface {
	Ensure()
	Frame() ([]byte, error)
}

// Gate reports whether the preview may keep producing frames.
type Gate interface {
	ShouldContinue() bool
}

type CameraHandler struct {
	Source       FrameSource
	Gate         Gate
	FPS          int
	RetryBackoff time.Duration
}

// Stream writes frames as multipart MJPEG until the gate closes or the client leaves.
func (h *CameraHandler) Stream(c *gin.Context) {
	if !h.Gate.ShouldContinue() {
		c.String(http.StatusForbidden, "Live stream only available in STREAM mode.")
		return
	}
	h.Source.Ensure()

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)

	interval := time.Second / time.Duration(max(h.FPS, 1))
	backoff := h.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	for h.Gate.ShouldContinue() {
		frame, err := h.Source.Frame()
		if err != nil {
			h.Source.Ensure()
			if !sleepCtx(c, backoff) {
				return
			}
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		flusher.Flush()

		if !sleepCtx(c, interval) {
			return
		}
	}
}

// sleepCtx waits d and reports false if the client went away first.
func sleepCtx(c *gin.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.Request.Context().Done():
		return false
	case <-t.C:
		return true
	}
}
