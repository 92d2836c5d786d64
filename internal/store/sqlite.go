package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/ielts-coach/internal/domain"
	_ "modernc.org/sqlite"
)

// MemoryDSN keeps all sessions in process memory.
const MemoryDSN = ":memory:"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed repository. dbPath may be MemoryDSN.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	var dsn string
	if dbPath == MemoryDSN || strings.HasPrefix(dbPath, "file::memory:") {
		dsn = dbPath
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database, so pin one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS exam_sessions (
		session_key TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		phase INTEGER NOT NULL,
		question_count INTEGER NOT NULL DEFAULT 0,
		history_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exam_sessions_updated ON exam_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession returns the session for key, or nil when none exists.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*domain.ExamSession, error) {
	query := `
		SELECT session_key, topic, phase, question_count, history_json, created_at, updated_at
		FROM exam_sessions WHERE session_key = ?`

	var (
		sess                 domain.ExamSession
		topic, historyJSON   string
		phase                int
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&sess.Key, &topic, &phase, &sess.QuestionCount, &historyJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan exam session row: %w", err)
	}

	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", key, err)
	}
	sess.Topic = domain.Topic(topic)
	sess.Phase = domain.Phase(phase)
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	return &sess, nil
}

// UpsertSession creates or replaces a session.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *domain.ExamSession) error {
	history := sess.History
	if history == nil {
		history = domain.History{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	query := `
	INSERT INTO exam_sessions (session_key, topic, phase, question_count, history_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_key) DO UPDATE SET
		topic = excluded.topic,
		phase = excluded.phase,
		question_count = excluded.question_count,
		history_json = excluded.history_json,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, "upsert exam session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.Key, string(sess.Topic), int(sess.Phase), sess.QuestionCount, string(historyJSON),
			sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
		)
		return err
	})
}

// DeleteSession removes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	return withBusyRetry(ctx, "delete exam session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM exam_sessions WHERE session_key = ?`, key)
		return err
	})
}

// ExpiredSessionKeys lists sessions idle for longer than ttl.
func (s *SQLiteStore) ExpiredSessionKeys(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `SELECT session_key FROM exam_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired session key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return keys, nil
}

// CountSessions returns the number of stored sessions.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exam sessions: %w", err)
	}
	return n, nil
}
