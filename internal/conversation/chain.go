// Package conversation keeps the running examiner dialogue and turns it into
// chat-completion requests.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/llm"
)

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// DefaultSystemPrompt frames every request sent to the model.
const DefaultSystemPrompt = "You are a friendly IELTS speaking examiner holding a conversation with a candidate. " +
	"Reply with a short acknowledgement and the next question, in plain spoken English. " +
	"Do not grade the candidate or explain the exam format unless asked."

// Chain sends the accumulated history plus the next input to an llm.Provider
// and records the exchange. A Chain holds no per-session state and is safe for
// concurrent use; each History must be owned by one caller at a time.
type Chain struct {
	llm          llm.Provider
	systemPrompt string
	temperature  float64
}

// Option configures a Chain.
type Option func(*Chain)

// WithSystemPrompt replaces DefaultSystemPrompt. An empty prompt sends none.
func WithSystemPrompt(p string) Option {
	return func(c *Chain) { c.systemPrompt = p }
}

// WithTemperature sets the sampling temperature. Zero is sent as is.
func WithTemperature(t float64) Option {
	return func(c *Chain) { c.temperature = t }
}

// New returns a Chain over p.
func New(p llm.Provider, opts ...Option) *Chain {
	c := &Chain{
		llm:          p,
		systemPrompt: DefaultSystemPrompt,
		temperature:  DefaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Predict sends the candidate's input and returns the examiner's reply.
// On success both turns are appended to h; on failure h is unchanged.
func (c *Chain) Predict(ctx context.Context, h *domain.History, input string) (string, error) {
	return c.exchange(ctx, h, domain.RoleCandidate, input)
}

// Prompt is Predict for scripted exam instructions.
func (c *Chain) Prompt(ctx context.Context, h *domain.History, prompt string) (string, error) {
	return c.exchange(ctx, h, domain.RolePrompt, prompt)
}

// Clear empties the history.
func (c *Chain) Clear(h *domain.History) {
	h.Clear()
}

func (c *Chain) exchange(ctx context.Context, h *domain.History, role domain.Role, input string) (string, error) {
	temperature := c.temperature
	req := llm.Request{
		SystemPrompt: c.systemPrompt,
		Messages:     buildMessages(*h, input),
		Temperature:  &temperature,
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("predict: %w", llm.AsCompletionError("", err))
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("predict: %w", &llm.CompletionError{Err: fmt.Errorf("empty reply")})
	}

	h.Append(
		domain.Turn{Role: role, Text: input},
		domain.Turn{Role: domain.RoleExaminer, Text: reply},
	)
	return reply, nil
}

func buildMessages(h domain.History, input string) []llm.Message {
	msgs := make([]llm.Message, 0, len(h)+1)
	for _, t := range h {
		msgs = append(msgs, llm.Message{Role: roleFor(t.Role), Content: t.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: input})
}

func roleFor(r domain.Role) string {
	if r == domain.RoleExaminer {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
