// Package accesslog persists one row per proxied request so operators can
// audit which attachments are being served to unauthenticated clients.
// Backends: no-op (default), SQLite, Postgres.
package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry is a single access log record.
type Entry struct {
	TraceID    string
	Route      string
	PageID     string
	Filename   string
	Status     int
	BytesSent  int
	DurationMS int64
	ErrorKind  string
	CreatedAt  time.Time
}

// Writer persists access log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite or Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (or creates) a SQLite access log at dsn.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "atlproxy-access.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite access log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens a Postgres access log at dsn.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres access log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s access log: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS access_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	route TEXT NOT NULL,
	page_id TEXT,
	filename TEXT,
	status INTEGER NOT NULL,
	bytes_sent INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error_kind TEXT,
	created_at DATETIME NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS access_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	route TEXT NOT NULL,
	page_id TEXT,
	filename TEXT,
	status INTEGER NOT NULL,
	bytes_sent INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error_kind TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize access log schema: %w", err)
	}
	return nil
}

// Write inserts one entry.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO access_logs(trace_id, route, page_id, filename, status, bytes_sent, duration_ms, error_kind, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO access_logs(trace_id, route, page_id, filename, status, bytes_sent, duration_ms, error_kind, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Route,
		entry.PageID,
		entry.Filename,
		entry.Status,
		entry.BytesSent,
		entry.DurationMS,
		entry.ErrorKind,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write access log: %w", err)
	}
	return nil
}

// Query filters List results. Zero values mean "no filter".
type Query struct {
	Route     string
	ErrorKind string
	Limit     int
	Offset    int
}

// Result is one page of access log rows plus the unpaged total.
type Result struct {
	Total int
	Data  []Entry
}

// List returns entries newest-first, filtered by q.
func (w *SQLWriter) List(ctx context.Context, q Query) (*Result, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	where := ""
	args := []interface{}{}
	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		args = append(args, value)
		if w.dialect == "postgres" {
			where += fmt.Sprintf("%s = $%d", column, len(args))
		} else {
			where += column + " = ?"
		}
	}
	addFilter("route", q.Route)
	addFilter("error_kind", q.ErrorKind)

	var total int
	countQuery := "SELECT COUNT(*) FROM access_logs" + where
	if err := w.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count access logs: %w", err)
	}

	sel := "SELECT trace_id, route, page_id, filename, status, bytes_sent, duration_ms, error_kind, created_at FROM access_logs" +
		where + " ORDER BY created_at DESC, id DESC"
	if w.dialect == "postgres" {
		sel += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	} else {
		sel += " LIMIT ? OFFSET ?"
	}
	args = append(args, q.Limit, q.Offset)

	rows, err := w.db.QueryContext(ctx, sel, args...)
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()

	result := &Result{Total: total, Data: []Entry{}}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Route, &e.PageID, &e.Filename,
			&e.Status, &e.BytesSent, &e.DurationMS, &e.ErrorKind, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan access log row: %w", err)
		}
		result.Data = append(result.Data, e)
	}
	return result, rows.Err()
}

// Close closes the underlying database handle.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
