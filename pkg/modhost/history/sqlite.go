/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists lifecycle events in a SQLite database, keeping the most recent maxRows rows.
type SQLiteRecorder struct {
	db      *sql.DB
	maxRows int
}

var _ Recorder = &SQLiteRecorder{}

// NewSQLiteRecorder opens (creating if needed) the database at dbPath.
func NewSQLiteRecorder(ctx context.Context, dbPath string, maxRows int) (*SQLiteRecorder, error) {
	path := filepath.Clean(dbPath)
	if path == "" || path == "." {
		return nil, fmt.Errorf("invalid history database path %q", dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history database directory - %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database - %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise report SQLITE_BUSY under contention.
	db.SetMaxOpenConns(1)

	r := &SQLiteRecorder{db: db, maxRows: maxRows}
	if err := r.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS module_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	module_id TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	pid INTEGER NOT NULL,
	message TEXT NOT NULL,
	at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_module_events_module ON module_events(module_id, id DESC);`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize module_events schema - %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, e Event) error {
	const insert = `
INSERT INTO module_events (module_id, from_status, to_status, pid, message, at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?);`
	if _, err := r.db.ExecContext(ctx, insert, e.ModuleID, e.From, e.To, e.PID, e.Message, e.At.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert module event - %w", err)
	}

	if r.maxRows > 0 {
		const trim = `
DELETE FROM module_events
WHERE id NOT IN (
	SELECT id FROM module_events
	ORDER BY id DESC
	LIMIT ?
);`
		if _, err := r.db.ExecContext(ctx, trim, r.maxRows); err != nil {
			return fmt.Errorf("failed to trim module events - %w", err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) List(ctx context.Context, moduleID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	const query = `
SELECT module_id, from_status, to_status, pid, message, at_unix_ms
FROM module_events
WHERE module_id = ?
ORDER BY id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, query, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query module events - %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			atMS int64
		)
		if err := rows.Scan(&e.ModuleID, &e.From, &e.To, &e.PID, &e.Message, &atMS); err != nil {
			return nil, fmt.Errorf("failed to scan module event - %w", err)
		}
		e.At = time.UnixMilli(atMS).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate module events - %w", err)
	}
	return out, nil
}

// Close releases the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
