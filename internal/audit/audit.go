// Package audit records coder invocations in a SQLite-backed event log.
// Auditing is best-effort: callers report failures to stderr but never fail
// an invocation over them.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultDBPath = "metacoder-audit.db"

// Logger writes audit events to a specific SQLite DB path.
type Logger struct {
	DBPath string
}

// NewLogger returns a Logger bound to the provided DB path. An empty path
// falls back to $METACODER_AUDIT_DB, then to the default path in the
// current directory.
func NewLogger(dbPath string) *Logger {
	return &Logger{DBPath: dbPath}
}

// Event is one recorded audit entry.
type Event struct {
	ID          int64
	TS          time.Time
	Actor       string
	Type        string
	PayloadJSON string
}

// LogEvent writes one audit event with a JSON-encoded payload.
func (l *Logger) LogEvent(actor string, eventType string, payload any) error {
	path, err := l.resolvePath()
	if err != nil {
		return err
	}
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = db.Exec(
		"INSERT INTO events (ts, actor, type, payload_json) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano),
		actor,
		eventType,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (l *Logger) RecentEvents(limit int) ([]Event, error) {
	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.Query(
		"SELECT id, ts, actor, type, payload_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var ts string
		if err := rows.Scan(&event.ID, &ts, &event.Actor, &event.Type, &event.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		event.TS = parsed
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	return events, nil
}

func (l *Logger) resolvePath() (string, error) {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	if path == "" {
		path = os.Getenv("METACODER_AUDIT_DB")
	}
	if path == "" {
		path = defaultDBPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure audit db dir: %w", err)
	}
	return absPath, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			actor TEXT NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}
