// Package sensor delivers PIR motion edges as callbacks.
package sensor

import (
	"context"
	"log/slog"
	"time"
)

// Config selects the GPIO line the PIR output is wired to.
type Config struct {
	Chip     string
	Pin      int
	Debounce time.Duration
	// Settle is how long the sensor is left alone after power-up before edges count.
	Settle time.Duration
}

// Handler is called once per rising edge with the line offset. It may be
// called from a goroutine owned by the GPIO library.
type Handler func(channel int)

// Arm waits for the settle delay and then opens the line. It returns early
// with ctx.Err() if ctx ends while settling.
func Arm(ctx context.Context, cfg Config, h Handler) (*Watcher, error) {
	if cfg.Settle > 0 {
		slog.Info("Letting PIR sensor settle", "delay", cfg.Settle)
		select {
		case <-time.After(cfg.Settle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	w, err := Open(cfg, h)
	if err != nil {
		return nil, err
	}
	slog.Info("PIR sensor armed", "chip", cfg.Chip, "pin", cfg.Pin, "debounce", cfg.Debounce)
	return w, nil
}
