package handlers

import (
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/motioncam/pkg/clips"
	"github.com/wachiwi/motioncam/pkg/control"
	"github.com/wachiwi/motioncam/pkg/dispatch"
)

// Snapshotter exposes the current dispatch state.
type Snapshotter interface {
	Snapshot() dispatch.Snapshot
}

// StatusHandler serves the dashboard, its JSON feed and the control actions.
type StatusHandler struct {
	State      Snapshotter
	Control    *control.Controller
	Clips      *clips.Index
	GraphFile  string
	AuthOn     bool
	TemplateFS fs.FS
}

// statusJSON keeps the field names the dashboard script polls for.
type statusJSON struct {
	LastMotion  *string  `json:"last_motion_timestamp"`
	LastDelta   *float64 `json:"last_motion_delta"`
	EventCount  uint64   `json:"motion_event_count"`
	CurrentMode string   `json:"current_mode"`
}

func toJSON(s dispatch.Snapshot) statusJSON {
	out := statusJSON{EventCount: s.EventCount, CurrentMode: s.Mode.String()}
	if s.LastMotion != "" {
		v := s.LastMotion
		out.LastMotion = &v
	}
	if s.HasInterval {
		v := s.Interval
		out.LastDelta = &v
	}
	return out
}

func (h *StatusHandler) Index(c *gin.Context) {
	snap := h.State.Snapshot()

	var recent []clips.Entry
	if h.Clips != nil {
		entries, err := h.Clips.List()
		if err != nil {
			slog.Error("Failed to list clips", "error", err)
		}
		if len(entries) > 10 {
			entries = entries[:10]
		}
		recent = entries
	}

	tmpl, err := template.ParseFS(h.TemplateFS, "templates/dashboard.html")
	if err != nil {
		slog.Error("Template parse error", "error", err)
		c.String(http.StatusInternalServerError, "Failed to render page")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	err = tmpl.Execute(c.Writer, gin.H{
		"Status":   toJSON(snap),
		"Snapshot": snap,
		"Stream":   snap.Mode == control.Stream,
		"Clips":    recent,
		"AuthOn":   h.AuthOn,
	})
	if err != nil {
		slog.Error("Template execution error", "error", err)
	}
}

func (h *StatusHandler) Data(c *gin.Context) {
	c.JSON(http.StatusOK, toJSON(h.State.Snapshot()))
}

func (h *StatusHandler) Graph(c *gin.Context) {
	if _, err := os.Stat(h.GraphFile); errors.Is(err, fs.ErrNotExist) {
		c.String(http.StatusNotFound, "No graph yet")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(h.GraphFile)
}

func (h *StatusHandler) Kill(c *gin.Context) {
	slog.Warn("Kill requested from dashboard", "remote", c.ClientIP())
	h.Control.RequestKill()
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<h1>Shutting down motion capture...</h1><p>You can close this tab.</p>"))
}

func (h *StatusHandler) SetMode(c *gin.Context) {
	if err := h.Control.SetModeString(c.Param("mode")); err != nil {
		c.String(http.StatusBadRequest, "Invalid mode: %s", c.Param("mode"))
		return
	}
	slog.Info("Mode set from dashboard", "mode", h.Control.Mode())
	c.Redirect(http.StatusFound, "/")
}
