package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ielts-coach/internal/conversation"
	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/llm"
	"github.com/ashureev/ielts-coach/internal/llm/mock"
)

func echoController(opts ...Option) (*Controller, *mock.Provider) {
	p := &mock.Provider{Reply: mock.LastUserMessage}
	return NewController(conversation.New(p), opts...), p
}

type recordingObserver struct {
	mu          sync.Mutex
	turns       int
	transitions []string
}

func (o *recordingObserver) RecordTurn(context.Context, domain.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns++
}

func (o *recordingObserver) RecordPhaseChange(_ context.Context, from, to domain.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, fmt.Sprintf("%s->%s", from, to))
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		phase domain.Phase
		topic domain.Topic
		want  string
	}{
		{domain.Part1, domain.TopicFood, "You are an IELTS examiner for Part 1 on topic: Food. Ask simple, personal questions."},
		{domain.Part2, domain.TopicTechnology, "Part 2: Describe a time when technology was important in your life."},
		{domain.Part3, domain.TopicTravel, "Part 3: Discuss broader analytical questions about Travel in society."},
		{domain.Phase(9), domain.TopicTravel, ""},
	}
	for _, tt := range tests {
		if got := Prompt(tt.phase, tt.topic); got != tt.want {
			t.Errorf("Prompt(%v, %v) = %q, want %q", tt.phase, tt.topic, got, tt.want)
		}
	}
}

func TestStartResetsForEveryTopic(t *testing.T) {
	for _, topic := range domain.Topics {
		t.Run(string(topic), func(t *testing.T) {
			c, p := echoController()
			s := domain.NewExamSession("k", time.Now())
			s.Phase = domain.Part3
			s.QuestionCount = 5
			s.History.Append(domain.Turn{Role: domain.RoleCandidate, Text: "stale"})

			r, err := c.Start(context.Background(), s, strings.ToLower(string(topic)))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if s.Topic != topic || s.Phase != domain.Part1 || s.QuestionCount != 0 {
				t.Errorf("session not reset: %+v", s)
			}
			if s.History.Len() != 2 {
				t.Errorf("history len = %d, want 2", s.History.Len())
			}

			calls := p.Calls()
			if len(calls) != 1 || len(calls[0].Messages) != 1 {
				t.Fatalf("first request should carry only the prompt: %+v", calls)
			}
			if calls[0].Messages[0].Content != Prompt(domain.Part1, topic) {
				t.Errorf("prompt = %q", calls[0].Messages[0].Content)
			}
			if r.Phase != domain.Part1 || !r.PhaseChanged {
				t.Errorf("reply = %+v", r)
			}
		})
	}
}

func TestStartUnknownTopic(t *testing.T) {
	c, p := echoController()
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Cooking"); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if p.CallCount() != 0 {
		t.Error("collaborator called for unknown topic")
	}
}

func TestSubmitBlankInput(t *testing.T) {
	c, p := echoController()
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Food"); err != nil {
		t.Fatal(err)
	}
	before := p.CallCount()

	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := c.Submit(context.Background(), s, in); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Submit(%q) err = %v", in, err)
		}
	}
	if p.CallCount() != before {
		t.Error("collaborator called for blank input")
	}
	if s.QuestionCount != 0 {
		t.Errorf("count changed: %d", s.QuestionCount)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	c, _ := echoController()
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Submit(context.Background(), s, "hello"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestAutoAdvanceOnFifthAnswer(t *testing.T) {
	obs := &recordingObserver{}
	c, p := echoController(WithObserver(obs))
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Food"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 4; i++ {
		r, err := c.Submit(context.Background(), s, fmt.Sprintf("answer %d", i))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if r.Phase != domain.Part1 || r.PhaseChanged || r.Question != fmt.Sprintf("Q: answer %d", i) {
			t.Errorf("answer %d reply = %+v", i, r)
		}
		if s.QuestionCount != i {
			t.Errorf("count after %d = %d", i, s.QuestionCount)
		}
	}

	r, err := c.Submit(context.Background(), s, "answer 5")
	if err != nil {
		t.Fatalf("Submit 5: %v", err)
	}
	part2 := Prompt(domain.Part2, domain.TopicFood)
	if r.Question != "Q: "+part2 {
		t.Errorf("fifth reply = %q, want reply to Part 2 prompt", r.Question)
	}
	if r.Phase != domain.Part2 || !r.PhaseChanged || !r.Part1Complete {
		t.Errorf("fifth reply = %+v", r)
	}
	if s.Phase != domain.Part2 || s.QuestionCount != Part1QuestionLimit {
		t.Errorf("session = phase %v count %d", s.Phase, s.QuestionCount)
	}

	// Start + 5 answers + Part 2 prompt.
	if p.CallCount() != 7 {
		t.Errorf("calls = %d, want 7", p.CallCount())
	}
	if len(obs.transitions) != 1 || obs.transitions[0] != "part1->part2" {
		t.Errorf("transitions = %v", obs.transitions)
	}

	// Part 2 answers leave the counter alone and never auto-advance.
	for i := 0; i < 3; i++ {
		r, err := c.Submit(context.Background(), s, "more")
		if err != nil {
			t.Fatal(err)
		}
		if r.Phase != domain.Part2 || r.PhaseChanged {
			t.Errorf("part 2 reply = %+v", r)
		}
	}
	if s.QuestionCount != Part1QuestionLimit {
		t.Errorf("count moved in Part 2: %d", s.QuestionCount)
	}
}

func TestManualAdvanceCapsCounter(t *testing.T) {
	c, _ := echoController(WithMode(ManualAdvance))
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Work"); err != nil {
		t.Fatal(err)
	}

	var last Reply
	for i := 0; i < 8; i++ {
		r, err := c.Submit(context.Background(), s, "answer")
		if err != nil {
			t.Fatal(err)
		}
		last = r
		if r.PhaseChanged || r.Phase != domain.Part1 {
			t.Fatalf("manual mode advanced on answer %d: %+v", i+1, r)
		}
		if got, want := r.Part1Complete, i+1 >= Part1QuestionLimit; got != want {
			t.Errorf("answer %d Part1Complete = %v", i+1, got)
		}
	}
	if s.QuestionCount != Part1QuestionLimit {
		t.Errorf("count = %d, want cap %d", s.QuestionCount, Part1QuestionLimit)
	}
	if !last.Part1Complete {
		t.Error("expected Part1Complete after limit")
	}
}

func TestAdvanceThroughParts(t *testing.T) {
	c, _ := echoController(WithMode(ManualAdvance))
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Health"); err != nil {
		t.Fatal(err)
	}

	r, err := c.Advance(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if r.Phase != domain.Part2 || r.Question != "Q: "+Prompt(domain.Part2, domain.TopicHealth) {
		t.Errorf("advance to part 2 = %+v", r)
	}

	r, err = c.Advance(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if r.Phase != domain.Part3 || r.Question != "Q: "+Prompt(domain.Part3, domain.TopicHealth) {
		t.Errorf("advance to part 3 = %+v", r)
	}

	if _, err := c.Advance(context.Background(), s); !errors.Is(err, ErrExamComplete) {
		t.Fatalf("expected ErrExamComplete, got %v", err)
	}
	if s.Phase != domain.Part3 {
		t.Errorf("phase = %v", s.Phase)
	}
}

func TestSubmitFailureKeepsCount(t *testing.T) {
	p := &mock.Provider{Content: "first question"}
	c := NewController(conversation.New(p))
	s := domain.NewExamSession("k", time.Now())
	if _, err := c.Start(context.Background(), s, "Family"); err != nil {
		t.Fatal(err)
	}

	p.Err = errors.New("upstream down")
	_, err := c.Submit(context.Background(), s, "my answer")
	if !errors.Is(err, llm.ErrCompletion) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
	if s.QuestionCount != 0 || s.History.Len() != 2 {
		t.Errorf("session changed on failure: count %d history %d", s.QuestionCount, s.History.Len())
	}
}
