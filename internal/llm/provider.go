// Package llm defines the chat-completion capability the examiner conversation
// runs on.
//
// Implementations must be safe for concurrent use. They receive the whole
// conversation on every call and keep no state of their own.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request carries everything a provider needs to produce the next reply.
type Request struct {
	// SystemPrompt is sent ahead of Messages when non-empty.
	SystemPrompt string
	Messages     []Message
	// Temperature is left to the provider default when nil.
	Temperature *float64
	MaxTokens   int
}

// Usage holds token accounting reported by the backend, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed model reply.
type Response struct {
	Content string
	Usage   Usage
}

// Provider produces chat completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ErrCompletion matches every *CompletionError via errors.Is.
var ErrCompletion = errors.New("chat completion failed")

// CompletionError reports a failed or empty reply from the chat collaborator.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("chat completion failed: %v", e.Err)
	}
	return fmt.Sprintf("chat completion failed (%s): %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCompletion) match any CompletionError.
func (e *CompletionError) Is(target error) bool { return target == ErrCompletion }

// AsCompletionError wraps err in a CompletionError unless it already is one.
func AsCompletionError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return err
	}
	return &CompletionError{Provider: provider, Err: err}
}
