package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"time"
)

// placeholderCapture produces generated frames at the configured rate. It
// stands in for a real device on platforms without a capture backend.
func placeholderCapture(ctx context.Context, cfg Config) (*process, error) {
	pr, pw := io.Pipe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
		defer ticker.Stop()
		for n := 0; ; n++ {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
				frame, err := placeholderFrame(cfg.Width, cfg.Height, n)
				if err != nil {
					pw.CloseWithError(err)
					return
				}
				if _, err := pw.Write(frame); err != nil {
					return
				}
			}
		}
	}()

	return &process{
		stdout: pr,
		wait: func() error {
			<-done
			return nil
		},
	}, nil
}

// placeholderFrame renders a gradient whose red channel cycles with n.
func placeholderFrame(width, height, n int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shade := byte(n % 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := y*img.Stride + x*4
			img.Pix[offset] = shade
			img.Pix[offset+1] = byte((x * 255) / width)
			img.Pix[offset+2] = byte((y * 255) / height)
			img.Pix[offset+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
