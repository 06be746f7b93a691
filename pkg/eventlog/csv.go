package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{"timestamp", "seconds_since_last_motion"}

// CSVSink appends events to a flat CSV file, creating it with a header on first write.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string { return "csv" }

// Path returns the log file location.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	_, statErr := os.Stat(s.path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write([]string{ev.Wall, ev.IntervalString()}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s *CSVSink) Close() error { return nil }

// ReadIntervals returns the recorded intervals in file order. Rows with an
// absent or unparseable interval are skipped. A missing file yields no rows.
func ReadIntervals(path string) ([]float64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []float64
	header := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to read event log: %w", err)
		}
		if header {
			header = false
			if len(rec) > 0 && rec[0] == csvHeader[0] {
				continue
			}
		}
		if len(rec) < 2 || rec[1] == "" || rec[1] == "None" {
			continue
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
