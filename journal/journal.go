// Package journal records run outcomes in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	op         TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	level      INTEGER NOT NULL,
	raised     INTEGER NOT NULL,
	diagnostic TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	duration   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// Entry is one recorded run.
type Entry struct {
	ID         string
	Op         string
	Label      string // filename or image name, when known
	Level      int
	Raised     bool
	Diagnostic string
	StartedAt  time.Time
	Duration   time.Duration
}

// Journal is an append-only log of runs.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e, assigning an ID and start time when missing, and
// returns the stored entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, op, label, level, raised, diagnostic, started_at, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Op, e.Label, e.Level, e.Raised, e.Diagnostic,
		e.StartedAt.UnixNano(), int64(e.Duration),
	)
	if err != nil {
		return e, fmt.Errorf("journal: record %s: %w", e.ID, err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, op, label, level, raised, diagnostic, started_at, duration
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			started  int64
			duration int64
		)
		if err := rows.Scan(&e.ID, &e.Op, &e.Label, &e.Level, &e.Raised, &e.Diagnostic, &started, &duration); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.StartedAt = time.Unix(0, started)
		e.Duration = time.Duration(duration)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Failures counts recorded runs that raised.
func (j *Journal) Failures(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE raised != 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal: count failures: %w", err)
	}
	return n, nil
}
