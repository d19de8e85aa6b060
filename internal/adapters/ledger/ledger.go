// Package ledger keeps a local SQLite record of request outcomes, read back
// by the history command.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediagate/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	url         TEXT NOT NULL,
	client      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	artifact_id TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	items       INTEGER NOT NULL DEFAULT 0,
	elapsed_ms  INTEGER NOT NULL DEFAULT 0,
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_at ON events(at);
`

// Ledger implements ports.EventSink on SQLite.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring ledger: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record inserts event.
func (l *Ledger) Record(ctx context.Context, event domain.Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (id, type, url, client, status, error_kind, artifact_id, size, items, elapsed_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.URL, event.Client, event.Status, event.ErrorKind,
		event.ArtifactID, event.Size, event.Items, event.Elapsed.Milliseconds(), event.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording event %s: %w", event.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, type, url, client, status, error_kind, artifact_id, size, items, elapsed_ms, at
		 FROM events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			ev        domain.Event
			elapsedMS int64
			atMS      int64
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.URL, &ev.Client, &ev.Status, &ev.ErrorKind,
			&ev.ArtifactID, &ev.Size, &ev.Items, &elapsedMS, &atMS); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		ev.At = time.UnixMilli(atMS)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
