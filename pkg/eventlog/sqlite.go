package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS motion_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT NOT NULL,
	wall_clock  TEXT NOT NULL,
	interval_s  REAL
);
CREATE INDEX IF NOT EXISTS idx_motion_events_occurred_at ON motion_events(occurred_at);
`

// SQLiteSink stores events in a local SQLite database in WAL mode.
type SQLiteSink struct {
	db         *sql.DB
	maxRetries uint64
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteSink{db: db, maxRetries: 3}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, ev Event) error {
	var interval sql.NullFloat64
	if ev.HasInterval {
		interval = sql.NullFloat64{Float64: ev.Interval, Valid: true}
	}
	return retryTransient(ctx, s.maxRetries, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO motion_events (occurred_at, wall_clock, interval_s) VALUES (?, ?, ?)`,
			ev.At.UTC().Format(time.RFC3339Nano), ev.Wall, interval)
		return err
	})
}

// Count returns the number of stored events.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM motion_events`).Scan(&n)
	return n, err
}

// Recent returns up to limit events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT occurred_at, wall_clock, interval_s FROM motion_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			at       string
			ev       Event
			interval sql.NullFloat64
		)
		if err := rows.Scan(&at, &ev.Wall, &interval); err != nil {
			return nil, err
		}
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		ev.Interval, ev.HasInterval = interval.Float64, interval.Valid
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// isTransient reports SQLite lock contention that a retry can resolve.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryTransient runs fn with jittered exponential backoff while it fails with
// a transient SQLite error.
func retryTransient(ctx context.Context, maxRetries uint64, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.RandomizationFactor = 0.5

	op := func() error {
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx))
}
