// Package clips keeps a small JSON index of recently produced recordings for
// the dashboard.
package clips

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/wachiwi/motioncam/pkg/recorder"
)

// DefaultRetention is how long entries stay in the index.
const DefaultRetention = 7 * 24 * time.Hour

type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Profile   string    `json:"profile"`
	Timestamp time.Time `json:"timestamp"`
	Uploaded  bool      `json:"uploaded"`
}

// Index is a JSON file of entries. Entries older than the retention are
// dropped on every write.
type Index struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	now       func() time.Time
}

func NewIndex(path string, retention time.Duration) *Index {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Index{path: path, retention: retention, now: time.Now}
}

// List returns the entries newest first.
func (x *Index) List() ([]Entry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, err := x.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Add appends e and prunes expired entries.
func (x *Index) Add(e Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, err := x.load()
	if err != nil {
		return err
	}
	return x.save(append(entries, e))
}

// MarkUploaded flags the entry with the given file name as uploaded.
func (x *Index) MarkUploaded(name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, err := x.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Name == name {
			entries[i].Uploaded = true
		}
	}
	return x.save(entries)
}

// ClipSaved records a finished recording. It is called on the recording goroutine.
func (x *Index) ClipSaved(c recorder.Clip) {
	err := x.Add(Entry{
		ID:        c.ID,
		Name:      c.Name,
		Profile:   c.Profile,
		Timestamp: c.StartedAt,
	})
	if err != nil {
		slog.Error("Error adding clip to index", "clip", c.Name, "error", err)
	}
}

// load reads the index. A missing, empty or corrupted file reads as empty and
// is overwritten by the next save.
func (x *Index) load() ([]Entry, error) {
	data, err := os.ReadFile(x.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("Clip index corrupted, starting fresh", "path", x.path, "error", err)
		return []Entry{}, nil
	}
	return entries, nil
}

func (x *Index) save(entries []Entry) error {
	cutoff := x.now().Add(-x.retention)
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(x.path), 0755); err != nil {
		return err
	}
	tmp := x.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, x.path)
}
