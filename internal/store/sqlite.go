package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/sshgw/internal/domain"
	"github.com/ashureev/sshgw/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteAuditStore implements AuditStore using SQLite, in WAL mode for
// concurrent readers alongside the writer.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore opens (creating if needed) the audit database at dsn.
func NewSQLiteAuditStore(dsn string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteAuditStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteAuditStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS session_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		connection_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'terminal',
		host TEXT NOT NULL,
		username TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration_seconds INTEGER,
		commands_executed TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_session_logs_user ON session_logs(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteAuditStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// OpenSessionLog inserts a new session_logs row and returns its id.
func (s *SQLiteAuditStore) OpenSessionLog(ctx context.Context, userID, connectionID, host, username string, start time.Time) (int64, error) {
	query := `
	INSERT INTO session_logs (user_id, connection_id, type, host, username, start_time)
	VALUES (?, ?, 'terminal', ?, ?, ?)`

	result, err := s.execWithBusyRetry(ctx, query, userID, connectionID, host, username, start.Unix())
	if err != nil {
		return 0, fmt.Errorf("open session log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get inserted session log id: %w", err)
	}
	return id, nil
}

// CloseSessionLog writes end_time, duration, and the command list (as the
// last 100 entries, JSON-encoded) to an open session_logs row.
func (s *SQLiteAuditStore) CloseSessionLog(ctx context.Context, sessionLogID int64, end time.Time, commands []domain.CommandEntry) error {
	if len(commands) > 100 {
		commands = commands[len(commands)-100:]
	}

	commandsJSON, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}

	query := `
	UPDATE session_logs
	SET end_time = ?, duration_seconds = ? - start_time, commands_executed = ?
	WHERE id = ?`

	_, err = s.execWithBusyRetry(ctx, query, end.Unix(), end.Unix(), string(commandsJSON), sessionLogID)
	if err != nil {
		return fmt.Errorf("close session log: %w", err)
	}
	return nil
}

// execWithBusyRetry runs an exec statement with exponential backoff on
// SQLITE_BUSY / "database is locked", mirroring the rest of this
// codebase's retry discipline around SQLite writes.
func (s *SQLiteAuditStore) execWithBusyRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !shared.IsSQLiteConflictError(err) {
			return nil, err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("session log write hit SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return nil, lastErr
}
