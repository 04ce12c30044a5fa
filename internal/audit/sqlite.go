package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/testguard/internal/model"
)

// SQLiteSink stores events in a sqlite database for querying across sessions.
type SQLiteSink struct {
	db *sql.DB
}

// EventQuery selects events from a SQLiteSink. Zero-valued fields match everything.
type EventQuery struct {
	SessionID  string
	Category   model.Category
	Decision   model.Decision
	Since      time.Time
	Until      time.Time
	TargetLike string
	Asc        bool
	Limit      int
}

// OpenSQLite opens (or creates) the event database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			ts_unix_ns INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			surface TEXT,
			target TEXT,
			decision TEXT NOT NULL,
			reason TEXT,
			rule_id TEXT,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_category_ts ON events(category, ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_events_decision ON events(decision);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: sqlite migrate: %w", err)
		}
	}
	return nil
}

// Write stores ev.
func (s *SQLiteSink) Write(ev Event) error {
	return s.AppendEvent(context.Background(), ev)
}

// AppendEvent inserts ev.
func (s *SQLiteSink) AppendEvent(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		return fmt.Errorf("audit: event missing id")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events(
			event_id, seq, ts_unix_ns, session_id, category, surface,
			target, decision, reason, rule_id, payload_json
		) VALUES(?,?,?,?,?,?,?,?,?,?,?);`,
		ev.ID,
		int64(ev.Seq),
		ev.Timestamp.UTC().UnixNano(),
		ev.SessionID,
		string(ev.Category),
		nullable(ev.Surface),
		nullable(ev.Target),
		string(ev.Decision),
		nullable(ev.Reason),
		nullable(ev.RuleID),
		string(b),
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Query returns events matching q, ordered by session and sequence
// (descending unless q.Asc). Limit defaults to 200.
func (s *SQLiteSink) Query(ctx context.Context, q EventQuery) ([]Event, error) {
	where := []string{"1=1"}
	var args []any

	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(q.Category))
	}
	if q.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, string(q.Decision))
	}
	if !q.Since.IsZero() {
		where = append(where, "ts_unix_ns >= ?")
		args = append(args, q.Since.UTC().UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts_unix_ns <= ?")
		args = append(args, q.Until.UTC().UnixNano())
	}
	if q.TargetLike != "" {
		where = append(where, "target LIKE ?")
		args = append(args, q.TargetLike)
	}

	order := "DESC"
	if q.Asc {
		order = "ASC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM events WHERE `+strings.Join(where, " AND ")+
			` ORDER BY ts_unix_ns `+order+`, seq `+order+` LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("audit: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: query events rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
