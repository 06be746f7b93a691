//go:build linux

package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// startCapture streams MJPEG from a V4L2 device through ffmpeg.
func startCapture(ctx context.Context, cfg Config) (*process, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FPS),
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	}
	if cfg.InputFormat != "" {
		args = append(args, "-input_format", cfg.InputFormat)
	}
	args = append(args,
		"-i", cfg.Device,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	slog.Info("Started camera streaming process", "device", cfg.Device,
		"width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS)

	return &process{
		stdout: stdout,
		wait: func() error {
			err := cmd.Wait()
			if err != nil && stderr.Len() > 0 {
				return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
			}
			return err
		},
	}, nil
}
