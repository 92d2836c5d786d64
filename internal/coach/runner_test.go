package coach

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/conversation"
	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/llm"
	llmmock "github.com/ashureev/ielts-coach/internal/llm/mock"
	sttmock "github.com/ashureev/ielts-coach/internal/stt/mock"
)

type fakeRecorder struct {
	pcm   audio.PCM
	err   error
	calls int
}

func (f *fakeRecorder) Record(_ context.Context, _ time.Duration) (audio.PCM, error) {
	f.calls++
	return f.pcm, f.err
}

func newRunner(input string, rec Recorder, transcriber *sttmock.Provider) (*Runner, *llmmock.Provider, *bytes.Buffer) {
	llmProv := &llmmock.Provider{Reply: llmmock.LastUserMessage}
	ctrl := exam.NewController(conversation.New(llmProv), exam.WithMode(exam.ManualAdvance))
	out := &bytes.Buffer{}
	return NewRunner(ctrl, rec, transcriber, 5*time.Second, strings.NewReader(input), out), llmProv, out
}

func TestRunFullExamByText(t *testing.T) {
	input := "9\n" + strings.Repeat("noodles\n", 6) + "next\nstory\nnext\nopinion\nnext\n"
	r, llmProv, out := newRunner(input, nil, &sttmock.Provider{})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"Topic: Food",
		"--- PART 1 ---",
		"--- PART 2 ---",
		"--- PART 3 ---",
		exam.Prompt(domain.Part2, domain.TopicFood),
		"Part 1 complete. Type 'next'",
		"Exam complete.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// start + 6 answers + part2 prompt + answer + part3 prompt + answer
	if got := llmProv.CallCount(); got != 11 {
		t.Errorf("llm calls = %d", got)
	}
	// Part 1 never advances on its own.
	if strings.Index(text, "--- PART 2 ---") < strings.LastIndex(text, "Q: noodles") {
		t.Error("part 2 started before the sixth part 1 answer")
	}
}

func TestRunInvalidTopic(t *testing.T) {
	r, llmProv, out := newRunner("42\n", nil, &sttmock.Provider{})
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Invalid topic") || llmProv.CallCount() != 0 {
		t.Errorf("output = %q calls = %d", out.String(), llmProv.CallCount())
	}
}

func TestRunTopicByName(t *testing.T) {
	r, _, out := newRunner("travel\nexit\n", nil, &sttmock.Provider{})
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Topic: Travel") || !strings.Contains(out.String(), "Practice ended.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunRecordedAnswer(t *testing.T) {
	rec := &fakeRecorder{pcm: audio.PCM{Data: []byte{0x10, 0x00, 0x20, 0x00}, SampleRate: 16000, Channels: 1}}
	transcriber := &sttmock.Provider{Text: "I cook every day"}
	r, llmProv, out := newRunner("1\nr\nexit\n", rec, transcriber)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 || len(transcriber.Calls()) != 1 {
		t.Fatalf("recorder=%d stt=%d", rec.calls, len(transcriber.Calls()))
	}
	if !strings.Contains(out.String(), "You said: I cook every day") {
		t.Errorf("output = %q", out.String())
	}
	calls := llmProv.Calls()
	last := calls[len(calls)-1].Messages
	if last[len(last)-1].Content != "I cook every day" {
		t.Errorf("model got %q", last[len(last)-1].Content)
	}
}

func TestRunRecordingProblems(t *testing.T) {
	silent := &fakeRecorder{pcm: audio.PCM{Data: make([]byte, 64), SampleRate: 16000, Channels: 1}}
	transcriber := &sttmock.Provider{Text: "unused"}
	r, llmProv, out := newRunner("1\nr\nexit\n", silent, transcriber)
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(transcriber.Calls()) != 0 || llmProv.CallCount() != 1 {
		t.Errorf("silent recording reached collaborators")
	}
	if !strings.Contains(out.String(), "No speech recognised") {
		t.Errorf("output = %q", out.String())
	}

	broken := &fakeRecorder{err: errors.New("no input device")}
	r, _, out = newRunner("1\nr\nexit\n", broken, transcriber)
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Error: no input device") {
		t.Errorf("output = %q", out.String())
	}

	r, _, out = newRunner("1\nr\nexit\n", nil, transcriber)
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "recording is not available") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCompletionErrorContinues(t *testing.T) {
	r, llmProv, out := newRunner("2\nboom\nagain\nexit\n", nil, &sttmock.Provider{})
	llmProv.Reply = func(req llm.Request) (string, error) {
		if req.Messages[len(req.Messages)-1].Content == "boom" {
			return "", errors.New("quota exceeded")
		}
		return llmmock.LastUserMessage(req)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "Error:") || !strings.Contains(text, "Examiner: Q: again") {
		t.Errorf("output = %q", text)
	}
}
