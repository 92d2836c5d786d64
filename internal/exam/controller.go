// Package exam drives the three-part speaking exam: it opens each part with a
// scripted prompt, counts Part 1 answers and decides when to move on.
package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/ielts-coach/internal/domain"
)

// Part1QuestionLimit is the number of Part 1 answers after which the exam
// moves to Part 2.
const Part1QuestionLimit = 5

var (
	ErrEmptyInput   = errors.New("empty input")
	ErrUnknownTopic = errors.New("unknown topic")
	ErrExamComplete = errors.New("exam complete")
	ErrNotStarted   = errors.New("exam not started")
)

// Conversation is the dialogue capability the controller drives.
// *conversation.Chain satisfies it.
type Conversation interface {
	Predict(ctx context.Context, h *domain.History, input string) (string, error)
	Prompt(ctx context.Context, h *domain.History, prompt string) (string, error)
	Clear(h *domain.History)
}

// Observer is notified of turns and phase changes. All methods must be cheap.
type Observer interface {
	RecordTurn(ctx context.Context, phase domain.Phase)
	RecordPhaseChange(ctx context.Context, from, to domain.Phase)
}

// Mode selects how Part 1 ends.
type Mode int

const (
	// AutoAdvance switches to Part 2 on the answer that reaches
	// Part1QuestionLimit and returns the Part 2 question instead.
	AutoAdvance Mode = iota
	// ManualAdvance only reports Part1Complete; the caller moves on with Advance.
	ManualAdvance
)

// Reply is the outcome of one controller operation.
type Reply struct {
	Question      string
	Phase         domain.Phase
	PhaseChanged  bool
	Part1Complete bool
}

// Controller applies exam rules to an ExamSession. It holds no session state;
// callers must serialize operations on the same session.
type Controller struct {
	conv     Conversation
	mode     Mode
	observer Observer
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithMode sets the Part 1 advance mode. The default is AutoAdvance.
func WithMode(m Mode) Option {
	return func(c *Controller) { c.mode = m }
}

// WithObserver registers o for turn and phase metrics.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// NewController returns a Controller over conv.
func NewController(conv Conversation, opts ...Option) *Controller {
	c := &Controller{conv: conv, mode: AutoAdvance, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start resets s for topic and asks the first Part 1 question.
func (c *Controller) Start(ctx context.Context, s *domain.ExamSession, topic string) (Reply, error) {
	t, err := domain.ParseTopic(topic)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownTopic, strings.TrimSpace(topic))
	}

	prev := s.Phase
	s.Topic = t
	s.Phase = domain.Part1
	s.QuestionCount = 0
	c.conv.Clear(&s.History)

	question, err := c.conv.Prompt(ctx, &s.History, Prompt(domain.Part1, t))
	if err != nil {
		return Reply{}, fmt.Errorf("start %s exam: %w", t, err)
	}
	s.UpdatedAt = c.now()
	c.turn(ctx, s.Phase)
	return Reply{Question: question, Phase: s.Phase, PhaseChanged: prev != domain.Part1}, nil
}

// Submit records the candidate's answer and returns the examiner's next
// question.
func (c *Controller) Submit(ctx context.Context, s *domain.ExamSession, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyInput
	}
	if s.Topic == "" {
		return Reply{}, ErrNotStarted
	}

	question, err := c.conv.Predict(ctx, &s.History, text)
	if err != nil {
		return Reply{}, fmt.Errorf("submit answer: %w", err)
	}
	c.turn(ctx, s.Phase)
	s.UpdatedAt = c.now()

	reply := Reply{Question: question, Phase: s.Phase}
	if s.Phase != domain.Part1 || s.QuestionCount >= Part1QuestionLimit {
		reply.Part1Complete = s.QuestionCount >= Part1QuestionLimit
		return reply, nil
	}

	s.QuestionCount++
	if s.QuestionCount < Part1QuestionLimit {
		return reply, nil
	}
	reply.Part1Complete = true
	if c.mode == ManualAdvance {
		return reply, nil
	}

	next, err := c.enter(ctx, s, domain.Part2)
	if err != nil {
		return Reply{}, err
	}
	next.Part1Complete = true
	return next, nil
}

// Advance moves to the next part and asks its opening question.
func (c *Controller) Advance(ctx context.Context, s *domain.ExamSession) (Reply, error) {
	if s.Topic == "" {
		return Reply{}, ErrNotStarted
	}
	to, ok := s.Phase.Next()
	if !ok {
		return Reply{}, ErrExamComplete
	}
	r, err := c.enter(ctx, s, to)
	if err != nil {
		return Reply{}, err
	}
	r.Part1Complete = s.QuestionCount >= Part1QuestionLimit
	return r, nil
}

func (c *Controller) enter(ctx context.Context, s *domain.ExamSession, to domain.Phase) (Reply, error) {
	question, err := c.conv.Prompt(ctx, &s.History, Prompt(to, s.Topic))
	if err != nil {
		return Reply{}, fmt.Errorf("enter %s: %w", to, err)
	}
	from := s.Phase
	s.Phase = to
	s.UpdatedAt = c.now()
	if c.observer != nil {
		c.observer.RecordPhaseChange(ctx, from, to)
	}
	return Reply{Question: question, Phase: to, PhaseChanged: true}, nil
}

func (c *Controller) turn(ctx context.Context, p domain.Phase) {
	if c.observer != nil {
		c.observer.RecordTurn(ctx, p)
	}
}
