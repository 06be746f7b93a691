package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/motioncam/pkg/recorder"
)

type ClipsHandler struct {
	Dir string
}

// Serve sends one recording. Only names produced by the recorder are accepted.
func (h *ClipsHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	if !recorder.IsClipName(name) {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.File(filepath.Join(h.Dir, name))
}
