package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrToolUnavailable means the capture binary could not be found on PATH.
var ErrToolUnavailable = errors.New("capture tool unavailable")

// Settings describes the capture device and the two encoder profiles.
type Settings struct {
	Tool        string
	Device      string
	Width       int
	Height      int
	FPS         int
	InputFormat string
	Seconds     int

	HWEncoder string
	Bitrate   string

	SWEncoder string
	SWPreset  string
	SWCRF     int
}

// Profile is one rung of the encoder fallback cascade.
type Profile struct {
	Name  string
	Codec []string
}

// HardwareProfile is the preferred, hardware-accelerated encoder.
func (s Settings) HardwareProfile() Profile {
	return Profile{
		Name:  "hardware",
		Codec: []string{"-c:v", s.HWEncoder, "-b:v", s.Bitrate},
	}
}

// SoftwareProfile is the fixed-quality software fallback.
func (s Settings) SoftwareProfile() Profile {
	return Profile{
		Name:  "software",
		Codec: []string{"-c:v", s.SWEncoder, "-preset", s.SWPreset, "-crf", strconv.Itoa(s.SWCRF)},
	}
}

// Args builds the full argument list for capturing into out with profile p.
func (s Settings) Args(p Profile, out string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(s.FPS),
		"-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-input_format", s.InputFormat,
		"-i", s.Device,
		"-t", strconv.Itoa(s.Seconds),
		"-pix_fmt", "yuv420p",
	}
	args = append(args, p.Codec...)
	return append(args, out)
}

// ExitError is a capture command that ran and exited non-zero.
type ExitError struct {
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, e.Output)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner runs one external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// CommandRunner runs commands with os/exec and reports stderr on failure.
type CommandRunner struct{}

func (CommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExitError{Code: code, Output: strings.TrimSpace(output.String()), Err: err}
}

// Executor runs a single capture for a given profile. It keeps no state between calls.
type Executor struct {
	settings Settings
	runner   Runner
	lookPath func(string) (string, error)
}

// NewExecutor returns an Executor using runner. A nil runner means CommandRunner.
func NewExecutor(settings Settings, runner Runner) *Executor {
	if runner == nil {
		runner = CommandRunner{}
	}
	return &Executor{
		settings: settings,
		runner:   runner,
		lookPath: exec.LookPath,
	}
}

// Probe checks that the capture tool resolves on PATH.
func (e *Executor) Probe() (string, error) {
	path, err := e.lookPath(e.settings.Tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolUnavailable, e.settings.Tool, err)
	}
	return path, nil
}

// Capture records one clip into out using profile p.
func (e *Executor) Capture(ctx context.Context, p Profile, out string) error {
	return e.runner.Run(ctx, e.settings.Tool, e.settings.Args(p, out)...)
}

// Settings returns the capture settings.
func (e *Executor) Settings() Settings {
	return e.settings
}
