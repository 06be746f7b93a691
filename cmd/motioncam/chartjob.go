package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/wachiwi/motioncam/pkg/chart"
)

// enqueuer accepts files for upload. *upload.Async satisfies it.
type enqueuer interface {
	Enqueue(path string) bool
}

// chartJob redraws the interval chart and ships the log and chart whenever
// the log has changed since the previous run.
type chartJob struct {
	logFile   string
	graphFile string
	uploads   enqueuer

	lastMod time.Time
}

func (j *chartJob) Run() {
	info, err := os.Stat(j.logFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Cannot stat event log", "path", j.logFile, "error", err)
		}
		return
	}
	if !info.ModTime().After(j.lastMod) {
		return
	}
	j.lastMod = info.ModTime()

	j.uploads.Enqueue(j.logFile)

	if err := chart.RenderLog(j.logFile, j.graphFile); err != nil {
		if errors.Is(err, chart.ErrNoData) {
			slog.Debug("No intervals to chart yet")
			return
		}
		slog.Error("Failed to render chart", "error", err)
		return
	}
	slog.Debug("Chart updated", "path", j.graphFile)
	j.uploads.Enqueue(j.graphFile)
}
