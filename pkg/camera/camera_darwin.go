//go:build darwin

package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// startCapture streams MJPEG from the default macOS camera through ffmpeg.
// AVFoundation devices mostly accept 30 fps only, so the rate is fixed.
func startCapture(ctx context.Context, cfg Config) (*process, error) {
	device := cfg.Device
	if device == "" || device[0] == '/' {
		device = "0"
	}

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "avfoundation",
		"-framerate", strconv.Itoa(30),
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-i", device,
		"-f", "mjpeg",
		"-q:v", "5",
		"-hide_banner",
		"-loglevel", "error",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	slog.Info("Started camera streaming process (ffmpeg)", "width", cfg.Width, "height", cfg.Height)

	return &process{stdout: stdout, wait: cmd.Wait}, nil
}
