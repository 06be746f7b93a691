package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/wachiwi/motioncam/pkg/camera"
	"github.com/wachiwi/motioncam/pkg/chime"
	"github.com/wachiwi/motioncam/pkg/clips"
	"github.com/wachiwi/motioncam/pkg/config"
	"github.com/wachiwi/motioncam/pkg/control"
	"github.com/wachiwi/motioncam/pkg/dispatch"
	"github.com/wachiwi/motioncam/pkg/eventlog"
	"github.com/wachiwi/motioncam/pkg/logger"
	"github.com/wachiwi/motioncam/pkg/recorder"
	"github.com/wachiwi/motioncam/pkg/sensor"
	"github.com/wachiwi/motioncam/pkg/telemetry"
	"github.com/wachiwi/motioncam/pkg/upload"
)

var version = "<not set>"

// previewHandoff bounds how long a switch to Record waits for the live preview
// to give the camera back.
const previewHandoff = 3 * time.Second

//go:embed templates/*
var templateFS embed.FS

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Mode       string `arg:"-m,--mode" help:"initial mode, record or stream (overrides the config file)"`
	Verbose    bool   `arg:"-v,--verbose" help:"make logging more verbose"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/motioncam.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	args := procArgs()
	logger.Setup(slog.LevelInfo, false)

	if args.Mode != "" {
		os.Setenv("MOTIONCAM_MODE", args.Mode)
	}
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("Unknown log level, using info", "level", cfg.LogLevel)
	}
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger.Setup(level, cfg.LogJSON)
	gin.SetMode(gin.ReleaseMode)

	if err := run(cfg); err != nil {
		logger.Fatal("motioncam stopped with error", "error", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting motioncam", "version", version, "data_dir", cfg.DataDir, "mode", cfg.Mode)
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, version, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Warn("Telemetry disabled", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	metrics := telemetry.NewMetrics()

	mode, err := cfg.InitialMode()
	if err != nil {
		return err
	}
	ctrl := control.New(mode)
	slot := &recorder.Slot{}

	events := eventlog.NewAsync(256, metrics, eventSinks(ctx, cfg)...)

	uploads := upload.NewAsync(newUploader(ctx, cfg), cfg.Upload.Workers, 64, metrics)
	index := clips.NewIndex(cfg.ClipIndex, clips.DefaultRetention)
	uploads.OnUploaded(func(path string) {
		if name := filepath.Base(path); recorder.IsClipName(name) {
			if err := index.MarkUploaded(name); err != nil {
				slog.Warn("Failed to mark clip uploaded", "clip", name, "error", err)
			}
		}
	})

	executor := recorder.NewExecutor(recorder.Settings{
		Tool:        cfg.Recording.Tool,
		Device:      cfg.Recording.Device,
		Width:       cfg.Recording.Width,
		Height:      cfg.Recording.Height,
		FPS:         cfg.Recording.FPS,
		InputFormat: cfg.Recording.InputFormat,
		Seconds:     cfg.Recording.Seconds,
		HWEncoder:   cfg.Recording.HWEncoder,
		Bitrate:     cfg.Recording.Bitrate,
		SWEncoder:   cfg.Recording.SWEncoder,
		SWPreset:    cfg.Recording.SWPreset,
		SWCRF:       cfg.Recording.SWCRF,
	}, nil)
	if _, err := executor.Probe(); err != nil {
		slog.Warn("Recordings will fail until the capture tool is installed", "error", err)
	}

	recOpts := []recorder.Option{
		recorder.WithMetrics(metrics),
		recorder.WithClipSink(index),
		recorder.WithClipSink(uploads),
		recorder.WithYieldingHolder(camera.OwnerStream, previewHandoff),
	}
	if cfg.Chime.File != "" {
		player, err := chime.New(cfg.Chime.File)
		if err != nil {
			slog.Warn("Chime disabled", "file", cfg.Chime.File, "error", err)
		} else {
			recOpts = append(recOpts, recorder.WithStartHook(func(string) { player.Play() }))
		}
	}
	orchestrator := recorder.NewOrchestrator(slot, executor, cfg.DataDir, recOpts...)

	dispatcher := dispatch.New(cfg.Recording.Cooldown, ctrl, orchestrator,
		dispatch.WithEventQueue(events),
		dispatch.WithMetrics(metrics),
	)

	gate := camera.NewGate(ctrl)
	preview := camera.NewSource(camera.Config{
		Device:       cfg.Recording.Device,
		InputFormat:  cfg.Recording.InputFormat,
		Width:        cfg.Stream.Width,
		Height:       cfg.Stream.Height,
		FPS:          cfg.Stream.FPS,
		RetryBackoff: cfg.Stream.RetryBackoff,
	}, slot, gate)
	ctrl.OnModeChange(func(m control.Mode) {
		slog.Info("Mode changed", "mode", m)
		if m == control.Stream {
			preview.Ensure()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), previewHandoff)
		defer cancel()
		if err := preview.Stop(ctx); err != nil {
			slog.Warn("Live preview slow to release the camera", "error", err)
		}
	})
	preview.Ensure()

	cronLogger := &logger.CronLogger{Logger: slog.Default()}
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	job := &chartJob{logFile: cfg.LogFile, graphFile: cfg.GraphFile, uploads: uploads}
	if _, err := scheduler.AddFunc(cfg.Chart.Schedule, job.Run); err != nil {
		return fmt.Errorf("invalid chart schedule %q: %w", cfg.Chart.Schedule, err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: newRouter(cfg, routerDeps{
			State:   dispatcher,
			Control: ctrl,
			Clips:   index,
			Source:  preview,
			Gate:    gate,
		}, templateFS),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Status server listening", "addr", cfg.HTTP.Addr, "auth", cfg.HTTP.AuthEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server failed", "error", err)
			ctrl.RequestKill()
		}
	}()

	watcher, err := sensor.Arm(ctx, sensor.Config{
		Chip:     cfg.Sensor.Chip,
		Pin:      cfg.Sensor.Pin,
		Debounce: cfg.Sensor.Debounce,
		Settle:   cfg.Sensor.Settle,
	}, dispatcher.OnMotion)
	switch {
	case err == nil:
		slog.Info("Motion capture running", "cooldown", cfg.Recording.Cooldown, "seconds", cfg.Recording.Seconds)
	case ctx.Err() != nil:
	default:
		slog.Error("PIR sensor unavailable, motion recording disabled", "error", err)
	}

	select {
	case <-ctx.Done():
		slog.Info("Signal received, shutting down")
	case <-ctrl.Done():
		slog.Info("Kill requested, shutting down")
	}
	ctrl.RequestKill()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			slog.Warn("Failed to release PIR line", "error", err)
		}
	}
	cronDone := scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Status server shutdown", "error", err)
	}
	if err := orchestrator.Wait(shutdownCtx); err != nil {
		slog.Warn("Recording still running at exit", "error", err)
	}
	if err := preview.Wait(shutdownCtx); err != nil {
		slog.Warn("Live preview still running at exit", "error", err)
	}
	select {
	case <-cronDone.Done():
	case <-shutdownCtx.Done():
	}
	if err := events.Close(shutdownCtx); err != nil {
		slog.Warn("Event log not fully flushed", "error", err)
	}
	if err := uploads.Close(shutdownCtx); err != nil {
		slog.Warn("Uploads still pending at exit", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("Telemetry shutdown", "error", err)
	}

	slog.Info("Exiting")
	return nil
}

// eventSinks opens the CSV log and whichever optional sinks are configured.
// Optional sinks that fail to open are skipped with a warning.
func eventSinks(ctx context.Context, cfg *config.Config) []eventlog.Sink {
	sinks := []eventlog.Sink{eventlog.NewCSVSink(cfg.LogFile)}

	if cfg.EventDB != "" {
		db, err := eventlog.OpenSQLite(cfg.EventDB)
		if err != nil {
			slog.Warn("SQLite event log disabled", "path", cfg.EventDB, "error", err)
		} else {
			sinks = append(sinks, db)
		}
	}

	if cfg.MQTT.Broker != "" {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		m, err := eventlog.ConnectMQTT(mctx, cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			slog.Warn("MQTT event publishing disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			sinks = append(sinks, m)
		}
	}
	return sinks
}

func newUploader(ctx context.Context, cfg *config.Config) upload.Uploader {
	switch cfg.Upload.Backend {
	case "rclone":
		r, err := upload.NewRclone(cfg.Upload.RcloneRemote, nil)
		if err != nil {
			slog.Warn("Uploads disabled", "backend", "rclone", "error", err)
			return upload.Noop{}
		}
		return r
	case "minio":
		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := upload.NewMinIO(mctx, upload.MinIOConfig{
			Endpoint:   cfg.Upload.MinIO.Endpoint,
			AccessKey:  cfg.Upload.MinIO.AccessKey,
			SecretKey:  cfg.Upload.MinIO.SecretKey,
			Bucket:     cfg.Upload.MinIO.Bucket,
			Prefix:     cfg.Upload.MinIO.Prefix,
			UseSSL:     cfg.Upload.MinIO.UseSSL,
			MaxRetries: cfg.Upload.MinIO.MaxRetries,
		})
		if err != nil {
			slog.Warn("Uploads disabled", "backend", "minio", "error", err)
			return upload.Noop{}
		}
		return m
	}
	return upload.Noop{}
}
