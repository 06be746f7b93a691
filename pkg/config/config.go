// Package config loads the controller configuration from defaults, an
// optional YAML file and MOTIONCAM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev/device/rpi"
	"gopkg.in/yaml.v3"

	"github.com/wachiwi/motioncam/pkg/control"
)

type Config struct {
	DataDir   string `yaml:"data_dir"`
	LogFile   string `yaml:"log_file"`
	GraphFile string `yaml:"graph_file"`
	ClipIndex string `yaml:"clip_index"`
	EventDB   string `yaml:"event_db"`

	Mode     string `yaml:"mode"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Sensor    SensorConfig    `yaml:"sensor"`
	Recording RecordingConfig `yaml:"recording"`
	Stream    StreamConfig    `yaml:"stream"`
	Upload    UploadConfig    `yaml:"upload"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Chart     ChartConfig     `yaml:"chart"`
	Chime     ChimeConfig     `yaml:"chime"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type SensorConfig struct {
	Chip     string        `yaml:"chip"`
	Pin      int           `yaml:"pin"`
	Debounce time.Duration `yaml:"debounce"`
	Settle   time.Duration `yaml:"settle"`
}

type RecordingConfig struct {
	Seconds     int           `yaml:"seconds"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Tool        string        `yaml:"tool"`
	Device      string        `yaml:"device"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FPS         int           `yaml:"fps"`
	InputFormat string        `yaml:"input_format"`
	HWEncoder   string        `yaml:"hw_encoder"`
	Bitrate     string        `yaml:"bitrate"`
	SWEncoder   string        `yaml:"sw_encoder"`
	SWPreset    string        `yaml:"sw_preset"`
	SWCRF       int           `yaml:"sw_crf"`
}

type StreamConfig struct {
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	FPS          int           `yaml:"fps"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type UploadConfig struct {
	Backend      string      `yaml:"backend"` // rclone, minio or none
	RcloneRemote string      `yaml:"rclone_remote"`
	MinIO        MinIOConfig `yaml:"minio"`
	Workers      int         `yaml:"workers"`
}

type MinIOConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	UseSSL     bool   `yaml:"use_ssl"`
	MaxRetries int    `yaml:"max_retries"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type HTTPConfig struct {
	Addr          string `yaml:"addr"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SessionSecret string `yaml:"session_secret"`
}

// AuthEnabled reports whether the dashboard requires a login.
func (h HTTPConfig) AuthEnabled() bool {
	return h.User != "" && h.Password != ""
}

type ChartConfig struct {
	Schedule string `yaml:"schedule"`
}

type ChimeConfig struct {
	File string `yaml:"file"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the stock configuration for a USB camera on a Raspberry Pi.
func Default() *Config {
	return &Config{
		DataDir:  "~/CapstoneData",
		Mode:     "record",
		LogLevel: "info",
		Sensor: SensorConfig{
			Chip:     "gpiochip0",
			Pin:      rpi.GPIO17,
			Debounce: 200 * time.Millisecond,
			Settle:   2 * time.Second,
		},
		Recording: RecordingConfig{
			Seconds:     5,
			Cooldown:    30 * time.Second,
			Tool:        "ffmpeg",
			Device:      "/dev/video0",
			Width:       1920,
			Height:      1080,
			FPS:         30,
			InputFormat: "mjpeg",
			HWEncoder:   "h264_v4l2m2m",
			Bitrate:     "6M",
			SWEncoder:   "libx264",
			SWPreset:    "veryfast",
			SWCRF:       23,
		},
		Stream: StreamConfig{
			Width:        640,
			Height:       480,
			FPS:          15,
			RetryBackoff: 50 * time.Millisecond,
		},
		Upload: UploadConfig{
			Backend: "none",
			Workers: 2,
			MinIO:   MinIOConfig{MaxRetries: 3},
		},
		MQTT: MQTTConfig{
			Topic:    "motioncam/events",
			ClientID: "motioncam",
		},
		HTTP: HTTPConfig{
			Addr: ":5000",
		},
		Chart: ChartConfig{
			Schedule: "@every 1m",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "motioncam",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error; an
// empty path skips the file entirely.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"MOTIONCAM_DATA_DIR":         &cfg.DataDir,
		"MOTIONCAM_EVENT_DB":         &cfg.EventDB,
		"MOTIONCAM_MODE":             &cfg.Mode,
		"MOTIONCAM_LOG_LEVEL":        &cfg.LogLevel,
		"MOTIONCAM_DEVICE":           &cfg.Recording.Device,
		"MOTIONCAM_HTTP_ADDR":        &cfg.HTTP.Addr,
		"MOTIONCAM_HTTP_USER":        &cfg.HTTP.User,
		"MOTIONCAM_HTTP_PASSWORD":    &cfg.HTTP.Password,
		"MOTIONCAM_SESSION_SECRET":   &cfg.HTTP.SessionSecret,
		"MOTIONCAM_UPLOAD_BACKEND":   &cfg.Upload.Backend,
		"MOTIONCAM_RCLONE_REMOTE":    &cfg.Upload.RcloneRemote,
		"MOTIONCAM_MINIO_ENDPOINT":   &cfg.Upload.MinIO.Endpoint,
		"MOTIONCAM_MINIO_ACCESS_KEY": &cfg.Upload.MinIO.AccessKey,
		"MOTIONCAM_MINIO_SECRET_KEY": &cfg.Upload.MinIO.SecretKey,
		"MOTIONCAM_MINIO_BUCKET":     &cfg.Upload.MinIO.Bucket,
		"MOTIONCAM_MQTT_BROKER":      &cfg.MQTT.Broker,
		"MOTIONCAM_CHIME_FILE":       &cfg.Chime.File,
		"MOTIONCAM_OTLP_ENDPOINT":    &cfg.Telemetry.OTLPEndpoint,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MOTIONCAM_RECORD_SECONDS": &cfg.Recording.Seconds,
		"MOTIONCAM_SENSOR_PIN":     &cfg.Sensor.Pin,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"MOTIONCAM_COOLDOWN": &cfg.Recording.Cooldown,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("MOTIONCAM_LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MOTIONCAM_LOG_JSON: %w", err)
		}
		cfg.LogJSON = b
	}
	return nil
}

// parseDuration accepts Go durations ("30s") and bare seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// resolvePaths expands ~ in DataDir and derives unset artifact paths from it.
func (c *Config) resolvePaths() {
	c.DataDir = expandHome(c.DataDir)
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "motion_log.csv")
	}
	if c.GraphFile == "" {
		c.GraphFile = filepath.Join(c.DataDir, "motion_intervals.png")
	}
	if c.ClipIndex == "" {
		c.ClipIndex = filepath.Join(c.DataDir, "clips.json")
	}
	c.LogFile = expandHome(c.LogFile)
	c.GraphFile = expandHome(c.GraphFile)
	c.ClipIndex = expandHome(c.ClipIndex)
	c.EventDB = expandHome(c.EventDB)
	c.Chime.File = expandHome(c.Chime.File)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// InitialMode parses Mode.
func (c *Config) InitialMode() (control.Mode, error) {
	return control.ParseMode(c.Mode)
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if _, err := c.InitialMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Recording.Seconds <= 0 {
		errs = append(errs, errors.New("recording.seconds must be positive"))
	}
	if c.Recording.Cooldown < 0 {
		errs = append(errs, errors.New("recording.cooldown must not be negative"))
	}
	if c.Recording.Width <= 0 || c.Recording.Height <= 0 || c.Recording.FPS <= 0 {
		errs = append(errs, errors.New("recording width, height and fps must be positive"))
	}
	if c.Recording.Tool == "" || c.Recording.Device == "" {
		errs = append(errs, errors.New("recording.tool and recording.device are required"))
	}
	if c.Stream.Width <= 0 || c.Stream.Height <= 0 || c.Stream.FPS <= 0 {
		errs = append(errs, errors.New("stream width, height and fps must be positive"))
	}
	if c.Sensor.Pin < 0 {
		errs = append(errs, errors.New("sensor.pin must not be negative"))
	}

	switch c.Upload.Backend {
	case "", "none":
	case "rclone":
		if c.Upload.RcloneRemote == "" {
			errs = append(errs, errors.New("upload.rclone_remote is required for the rclone backend"))
		}
	case "minio":
		if c.Upload.MinIO.Endpoint == "" || c.Upload.MinIO.Bucket == "" {
			errs = append(errs, errors.New("upload.minio.endpoint and upload.minio.bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload.backend %q", c.Upload.Backend))
	}

	if (c.HTTP.User == "") != (c.HTTP.Password == "") {
		errs = append(errs, errors.New("http.user and http.password must be set together"))
	}
	return errors.Join(errs...)
}
