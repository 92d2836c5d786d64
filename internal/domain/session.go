package domain

import (
	"time"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleExaminer  Role = "examiner"
	RoleCandidate Role = "candidate"
	// RolePrompt marks scripted exam instructions sent on the candidate's side.
	RolePrompt Role = "prompt"
)

// Turn is a single utterance in the exam conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is the ordered, append-only record of turns for one session.
type History []Turn

// Append adds turns to the end of the history.
func (h *History) Append(turns ...Turn) {
	*h = append(*h, turns...)
}

// Clear empties the history.
func (h *History) Clear() {
	*h = nil
}

// Len returns the number of recorded turns.
func (h History) Len() int { return len(h) }

// ExamSession is the per-user state of one exam run.
type ExamSession struct {
	Key           string
	Topic         Topic
	Phase         Phase
	QuestionCount int
	History       History
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewExamSession returns a fresh Part-1 session for key.
func NewExamSession(key string, now time.Time) *ExamSession {
	return &ExamSession{
		Key:       key,
		Phase:     Part1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing History.
func (s *ExamSession) Clone() *ExamSession {
	c := *s
	if s.History != nil {
		c.History = make(History, len(s.History))
		copy(c.History, s.History)
	}
	return &c
}
