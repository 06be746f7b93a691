//go:build !darwin && !linux

package camera

import (
	"context"
	"log/slog"
)

func startCapture(ctx context.Context, cfg Config) (*process, error) {
	slog.Warn("No capture backend on this platform, serving placeholder frames")
	return placeholderCapture(ctx, cfg)
}
