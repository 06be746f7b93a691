//go:build !linux

package sensor

import "log/slog"

// Watcher is a mock for platforms without GPIO. Edges can be injected with Fire.
type Watcher struct {
	h Handler
}

// Open returns a mock watcher that never fires on its own.
func Open(cfg Config, h Handler) (*Watcher, error) {
	slog.Info("[MOCK] PIR sensor", "chip", cfg.Chip, "pin", cfg.Pin)
	return &Watcher{h: h}, nil
}

// Fire simulates one rising edge.
func (w *Watcher) Fire(channel int) {
	w.h(channel)
}

func (w *Watcher) Close() error {
	slog.Info("[MOCK] PIR sensor closed")
	return nil
}
