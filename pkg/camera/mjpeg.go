package camera

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	readChunkSize = 4096
	maxFrameSize  = 10 * 1024 * 1024
	staleAfter    = 5 * time.Second
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}

	// ErrNoFrame is returned by Frame while no fresh frame is available.
	ErrNoFrame = errors.New("no frame available")
)

// frameStore holds the latest complete JPEG.
type frameStore struct {
	mu    sync.RWMutex
	frame []byte
	at    time.Time
}

func (f *frameStore) set(frame []byte) {
	f.mu.Lock()
	f.frame = frame
	f.at = time.Now()
	f.mu.Unlock()
}

func (f *frameStore) clear() {
	f.mu.Lock()
	f.frame = nil
	f.mu.Unlock()
}

// latest returns a copy of the newest frame, or ErrNoFrame when there is none
// or it is older than staleAfter.
func (f *frameStore) latest() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.frame) == 0 {
		return nil, ErrNoFrame
	}
	if time.Since(f.at) > staleAfter {
		return nil, fmt.Errorf("%w: frame is stale (>%s old)", ErrNoFrame, staleAfter)
	}
	dst := make([]byte, len(f.frame))
	copy(dst, f.frame)
	return dst, nil
}

// PumpFrames reads an MJPEG byte stream from r and calls emit with every
// complete JPEG image, in order. It returns when r fails or reaches EOF.
func PumpFrames(r io.Reader, emit func([]byte)) error {
	buf := make([]byte, readChunkSize)
	var pending []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			rest := extractFrames(pending, emit)
			pending = append(pending[:0], rest...)

			if len(pending) > maxFrameSize {
				slog.Warn("Frame buffer overflow, resetting")
				pending = nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("capture stream ended: %w", err)
			}
			return err
		}
	}
}

// extractFrames emits every complete SOI..EOI span in data and returns the
// unconsumed tail, which is either a partial frame or a possible split marker.
func extractFrames(data []byte, emit func([]byte)) []byte {
	for {
		start := bytes.Index(data, soi)
		if start == -1 {
			if n := len(data); n > 0 && data[n-1] == soi[0] {
				return data[n-1:]
			}
			return nil
		}
		end := bytes.Index(data[start+len(soi):], eoi)
		if end == -1 {
			return data[start:]
		}
		end += start + len(soi) + len(eoi)

		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		emit(frame)
		data = data[end:]
	}
}
