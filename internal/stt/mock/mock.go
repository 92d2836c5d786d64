// Package mock provides a test double for stt.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/stt"
)

// Provider returns Text for every call, or fails with Err.
type Provider struct {
	mu sync.Mutex

	Text string
	Err  error

	calls []audio.PCM
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, pcm)
	text, failure := p.Text, p.Err
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", stt.AsTranscriptionError("mock", err)
	}
	if failure != nil {
		return "", stt.AsTranscriptionError("mock", failure)
	}
	return text, nil
}

// Calls returns every PCM buffer received so far.
func (p *Provider) Calls() []audio.PCM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.PCM(nil), p.calls...)
}
