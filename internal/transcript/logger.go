// Package transcript appends exam dialogue to per-session NDJSON files so a
// candidate's practice can be reviewed later.
//
// Files live at <Dir>/<user id>/<session id>.ndjson. Writes happen on a
// single background goroutine; when its queue is full events are dropped
// rather than slowing down the exam.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Event types.
const (
	EventExamStarted      = "exam_started"
	EventCandidateAnswer  = "candidate_answer"
	EventExaminerQuestion = "examiner_question"
	EventPhaseChanged     = "phase_changed"
)

// Event is one line in a transcript file.
type Event struct {
	Timestamp string `json:"ts"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Channel   string `json:"channel"`
	EventType string `json:"event_type"`
	Topic     string `json:"topic,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger records exam events.
type Logger interface {
	Log(Event)
	Close() error
}

// New returns a file-backed Logger, or a no-op one when cfg is disabled.
func New(cfg Config) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("transcript: dir cannot be empty")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("transcript: create dir: %w", err)
	}

	l := &fileLogger{
		dir:   cfg.Dir,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(Event)    {}
func (Nop) Close() error { return nil }

type fileLogger struct {
	dir   string
	queue chan Event
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func (l *fileLogger) Log(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	e.Content = clean(e.Content)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		slog.Warn("Transcript queue full, dropping event", "user_id", e.UserID, "session_id", e.SessionID, "event_type", e.EventType)
	}
}

// Close flushes queued events and stops the writer.
func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.write(e); err != nil {
			slog.Warn("Failed to write transcript", "error", err, "user_id", e.UserID, "session_id", e.SessionID)
		}
	}
}

func (l *fileLogger) write(e Event) error {
	dir := filepath.Join(l.dir, safeName(e.UserID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, safeName(e.SessionID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// safeName keeps a single path element out of reach of traversal.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

// clean strips control characters other than newlines and tabs.
func clean(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s))
}
