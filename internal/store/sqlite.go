package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alamati/tgrelay/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteLog implements AuditLog using SQLite.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed audit log.
func NewSQLite(dbPath string) (AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log := &SQLiteLog{db: db}
	if err := log.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return log, nil
}

func (s *SQLiteLog) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS auth_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_auth_events_created ON auth_events(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteLog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record appends one auth event, retrying briefly on SQLite lock conflicts.
func (s *SQLiteLog) Record(ctx context.Context, phone string, kind EventKind, detail string) error {
	query := `INSERT INTO auth_events (phone, kind, detail, created_at) VALUES (?, ?, ?, ?)`

	maxRetries := 3
	baseDelay := 50 * time.Millisecond
	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, phone, string(kind), detail, time.Now().Unix())
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Audit insert hit SQLite lock, retrying", "kind", kind, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return fmt.Errorf("record auth event: %w", err)
}

// Recent returns up to limit events, newest first.
func (s *SQLiteLog) Recent(ctx context.Context, limit int) ([]AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, phone, kind, detail, created_at
		FROM auth_events ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Debug("Failed to close rows", "error", closeErr)
		}
	}()

	var events []AuthEvent
	for rows.Next() {
		var ev AuthEvent
		var detail sql.NullString
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.Phone, &ev.Kind, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		ev.Detail = detail.String
		ev.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth events: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
