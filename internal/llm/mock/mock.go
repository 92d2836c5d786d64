// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/ashureev/ielts-coach/internal/llm"
)

// Provider is a scripted llm.Provider. When Reply is set it decides each
// answer; otherwise Content is returned. Err, when non-nil, fails every call.
type Provider struct {
	mu sync.Mutex

	Content string
	Reply   func(req llm.Request) (string, error)
	Err     error

	calls []llm.Request
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	cp := req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.calls = append(p.calls, cp)
	reply, content, failure := p.Reply, p.Content, p.Err
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, llm.AsCompletionError("mock", err)
	}
	if failure != nil {
		return nil, llm.AsCompletionError("mock", failure)
	}
	if reply != nil {
		text, err := reply(req)
		if err != nil {
			return nil, llm.AsCompletionError("mock", err)
		}
		return &llm.Response{Content: text}, nil
	}
	return &llm.Response{Content: content}, nil
}

// Calls returns a copy of every request received so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.calls...)
}

// CallCount returns the number of Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// LastUserMessage is a Reply helper that echoes the final message content.
func LastUserMessage(req llm.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", nil
	}
	return "Q: " + req.Messages[len(req.Messages)-1].Content, nil
}
