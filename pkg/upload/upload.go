// Package upload ships recordings and log artifacts off the device. Uploads are
// best effort: failures are logged and counted, never returned to the caller
// that produced the file.
package upload

import (
	"context"
	"path/filepath"
	"strings"
)

// Uploader copies one local file to remote storage.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, path string) error
}

// Noop discards uploads. It is used when no backend is configured.
type Noop struct{}

func (Noop) Name() string                                  { return "none" }
func (Noop) Upload(ctx context.Context, path string) error { return nil }

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".csv":
		return "text/csv"
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	case ".db":
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}
