package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wachiwi/motioncam/pkg/control"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Recording.Cooldown != 30*time.Second || cfg.Recording.Seconds != 5 {
		t.Errorf("recording defaults = %+v", cfg.Recording)
	}
	if cfg.Sensor.Pin != 17 || cfg.Sensor.Debounce != 200*time.Millisecond {
		t.Errorf("sensor defaults = %+v", cfg.Sensor)
	}
	if cfg.HTTP.Addr != ":5000" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		t.Errorf("data dir not expanded: %q", cfg.DataDir)
	}
	if cfg.LogFile != filepath.Join(cfg.DataDir, "motion_log.csv") {
		t.Errorf("log file = %q", cfg.LogFile)
	}
	if m, _ := cfg.InitialMode(); m != control.Record {
		t.Errorf("mode = %v", m)
	}
}

func TestYAMLAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motioncam.yaml")
	yml := `
data_dir: ` + dir + `
mode: stream
recording:
  cooldown: 45s
  seconds: 8
stream:
  retry_backoff: 100ms
upload:
  backend: rclone
  rclone_remote: gdrive:motion
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(path, env(map[string]string{
		"MOTIONCAM_COOLDOWN":      "10",
		"MOTIONCAM_LOG_JSON":      "true",
		"MOTIONCAM_HTTP_USER":     "admin",
		"MOTIONCAM_HTTP_PASSWORD": "secret",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Recording.Cooldown != 10*time.Second {
		t.Errorf("env should override cooldown, got %v", cfg.Recording.Cooldown)
	}
	if cfg.Recording.Seconds != 8 || cfg.Stream.RetryBackoff != 100*time.Millisecond {
		t.Errorf("yaml values lost: %+v %+v", cfg.Recording, cfg.Stream)
	}
	if cfg.Recording.Device != "/dev/video0" {
		t.Errorf("unset yaml field should keep default, got %q", cfg.Recording.Device)
	}
	if !cfg.LogJSON || !cfg.HTTP.AuthEnabled() {
		t.Errorf("env flags not applied: json=%v auth=%v", cfg.LogJSON, cfg.HTTP.AuthEnabled())
	}
	if cfg.GraphFile != filepath.Join(dir, "motion_intervals.png") {
		t.Errorf("graph file = %q", cfg.GraphFile)
	}
	if m, _ := cfg.InitialMode(); m != control.Stream {
		t.Errorf("mode = %v", m)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "pause" }, "invalid mode"},
		{"zero seconds", func(c *Config) { c.Recording.Seconds = 0 }, "recording.seconds"},
		{"negative cooldown", func(c *Config) { c.Recording.Cooldown = -time.Second }, "cooldown"},
		{"rclone without remote", func(c *Config) { c.Upload.Backend = "rclone" }, "rclone_remote"},
		{"minio without bucket", func(c *Config) { c.Upload.Backend = "minio" }, "minio"},
		{"unknown backend", func(c *Config) { c.Upload.Backend = "ftp" }, "unknown upload.backend"},
		{"half auth", func(c *Config) { c.HTTP.User = "admin" }, "http.user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.resolvePaths()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestBadEnvValue(t *testing.T) {
	if _, err := load("", env(map[string]string{"MOTIONCAM_RECORD_SECONDS": "five"})); err == nil {
		t.Error("expected error for non-numeric MOTIONCAM_RECORD_SECONDS")
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	if _, err := load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil)); err != nil {
		t.Errorf("missing file should not fail: %v", err)
	}
}
