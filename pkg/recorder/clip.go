package recorder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	clipPrefix    = "motion_"
	clipExt       = ".mp4"
	clipTimestamp = "20060102_150405"
)

// ErrBadClipName is returned by ParseClipName for names that don't follow the
// motion_YYYYMMDD_HHMMSS.mp4 pattern.
var ErrBadClipName = errors.New("not a clip name")

// ClipName returns the artifact file name for a capture started at t.
func ClipName(t time.Time) string {
	return clipPrefix + t.Format(clipTimestamp) + clipExt
}

// ParseClipName recovers the capture timestamp (local time, second precision)
// from a name produced by ClipName.
func ParseClipName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, clipPrefix) || !strings.HasSuffix(name, clipExt) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadClipName, name)
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, clipPrefix), clipExt)
	t, err := time.ParseInLocation(clipTimestamp, ts, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrBadClipName, name, err)
	}
	return t, nil
}

// IsClipName reports whether name parses as a clip file name.
func IsClipName(name string) bool {
	_, err := ParseClipName(name)
	return err == nil
}
