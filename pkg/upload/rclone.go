package upload

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/wachiwi/motioncam/pkg/recorder"
)

// Rclone copies files to an rclone remote such as "gdrive:motion".
type Rclone struct {
	remote string
	runner recorder.Runner
}

// NewRclone checks that the rclone binary is available. A nil runner runs the real command.
func NewRclone(remote string, runner recorder.Runner) (*Rclone, error) {
	if remote == "" {
		return nil, fmt.Errorf("rclone remote is empty")
	}
	if runner == nil {
		if _, err := exec.LookPath("rclone"); err != nil {
			return nil, fmt.Errorf("rclone not found: %w", err)
		}
		runner = recorder.CommandRunner{}
	}
	return &Rclone{remote: remote, runner: runner}, nil
}

func (r *Rclone) Name() string { return "rclone" }

func (r *Rclone) Upload(ctx context.Context, path string) error {
	if err := r.runner.Run(ctx, "rclone", "copy", path, r.remote); err != nil {
		return fmt.Errorf("rclone copy %s: %w", path, err)
	}
	return nil
}
