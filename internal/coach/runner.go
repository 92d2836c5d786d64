// Package coach runs the interactive terminal exam: topic menu, then the
// three parts driven by typed or recorded answers.
package coach

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/stt"
)

// Recorder captures a fixed-length answer from a microphone.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (audio.PCM, error)
}

// Runner owns one terminal exam. It is not safe for concurrent use.
type Runner struct {
	ctrl        *exam.Controller
	recorder    Recorder
	transcriber stt.Provider
	recordFor   time.Duration

	in  *bufio.Scanner
	out io.Writer
}

// NewRunner wires a Runner. recorder may be nil, which disables the "r"
// command. ctrl should use exam.ManualAdvance.
func NewRunner(ctrl *exam.Controller, recorder Recorder, transcriber stt.Provider, recordFor time.Duration, in io.Reader, out io.Writer) *Runner {
	return &Runner{
		ctrl:        ctrl,
		recorder:    recorder,
		transcriber: transcriber,
		recordFor:   recordFor,
		in:          bufio.NewScanner(in),
		out:         out,
	}
}

// Run plays one exam until the candidate exits, finishes Part 3, or input
// ends.
func (r *Runner) Run(ctx context.Context) error {
	r.welcome()

	topic, ok := r.selectTopic()
	if !ok {
		r.printf("Invalid topic. Goodbye.\n")
		return nil
	}
	r.printf("Topic: %s\n", topic)

	s := domain.NewExamSession("cli", time.Now())
	reply, err := r.ctrl.Start(ctx, s, topic.String())
	if err != nil {
		return err
	}
	r.showPart(reply)

	for {
		r.printf("Type 'r' to record, an answer, or 'next'/'exit': ")
		line, ok := r.readLine()
		if !ok {
			r.printf("\n")
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit":
			r.printf("Practice ended.\n")
			return nil
		case "next":
			reply, err := r.ctrl.Advance(ctx, s)
			if errors.Is(err, exam.ErrExamComplete) {
				r.printf("Exam complete. Well done!\n")
				return nil
			}
			if err != nil {
				r.printf("Error: %v\n", err)
				continue
			}
			r.showPart(reply)
			continue
		case "r":
			text, err := r.recordAnswer(ctx)
			if err != nil {
				r.printf("Error: %v\n", err)
				continue
			}
			if text == "" {
				r.printf("No speech recognised, please try again.\n")
				continue
			}
			r.printf("You said: %s\n", text)
			line = text
		}

		reply, err := r.ctrl.Submit(ctx, s, line)
		if err != nil {
			slog.Debug("Answer failed", "error", err)
			r.printf("Error: %v\n", err)
			continue
		}
		r.printf("Examiner: %s\n\n", reply.Question)
		if reply.Phase == domain.Part1 && reply.Part1Complete {
			r.printf("Part 1 complete. Type 'next' to move on to Part 2.\n")
		}
	}
}

func (r *Runner) welcome() {
	r.printf("\n===== IELTS SPEAKING COACH =====\n")
	r.printf("Answer by voice or by typing.\n")
	if r.recorder != nil {
		r.printf("Type 'r' to record %s, or type your answer directly.\n", r.recordFor)
	}
	r.printf("Use 'next' to move to the next part and 'exit' to quit.\n\n")
}

// selectTopic accepts a menu number or a topic name.
func (r *Runner) selectTopic() (domain.Topic, bool) {
	for i, t := range domain.Topics {
		r.printf("%d. %s\n", i+1, t)
	}
	r.printf("Choose a topic (number): ")
	line, ok := r.readLine()
	if !ok {
		return "", false
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(domain.Topics) {
			return "", false
		}
		return domain.Topics[n-1], true
	}
	t, err := domain.ParseTopic(line)
	return t, err == nil
}

func (r *Runner) recordAnswer(ctx context.Context) (string, error) {
	if r.recorder == nil {
		return "", errors.New("recording is not available")
	}
	r.printf("Recording for %s...\n", r.recordFor)
	pcm, err := r.recorder.Record(ctx, r.recordFor)
	if err != nil {
		return "", err
	}
	r.printf("Recording finished.\n")
	if pcm.Silent() {
		return "", nil
	}
	pcm = audio.Convert(pcm)
	return r.transcriber.Transcribe(ctx, pcm)
}

func (r *Runner) showPart(reply exam.Reply) {
	r.printf("--- PART %d ---\n", int(reply.Phase))
	r.printf("Examiner: %s\n\n", reply.Question)
}

func (r *Runner) readLine() (string, bool) {
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
