//go:build linux

package sensor

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Watcher holds the requested input line.
type Watcher struct {
	line *gpiocdev.Line
}

// Open requests cfg.Pin as a pulled-down input reporting rising edges, with
// kernel debounce when cfg.Debounce is set.
func Open(cfg Config, h Handler) (*Watcher, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("motioncam"),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			h(evt.Offset)
		}),
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request line %s:%d: %w", cfg.Chip, cfg.Pin, err)
	}
	return &Watcher{line: line}, nil
}

// Close releases the line. No handler calls happen after it returns.
func (w *Watcher) Close() error {
	return w.line.Close()
}
