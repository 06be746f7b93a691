// Package chart renders the motion interval history as a PNG line plot.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/wachiwi/motioncam/pkg/eventlog"
)

// ErrNoData means the log has no intervals to plot yet.
var ErrNoData = errors.New("no interval data")

// Render plots intervals against their 1-based index and writes a PNG to out.
func Render(intervals []float64, out string) error {
	if len(intervals) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Intervals Between Motion Events"
	p.X.Label.Text = "Motion Event Index"
	p.Y.Label.Text = "Seconds Since Previous Motion"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(intervals))
	for i, v := range intervals {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("failed to build plot: %w", err)
	}
	p.Add(line, points)

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	tmp := out + ".tmp.png"
	if err := p.Save(8*vg.Inch, 4*vg.Inch, tmp); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return os.Rename(tmp, out)
}

// RenderLog reads the CSV event log at logPath and renders it to out.
func RenderLog(logPath, out string) error {
	intervals, err := eventlog.ReadIntervals(logPath)
	if err != nil {
		return err
	}
	return Render(intervals, out)
}
