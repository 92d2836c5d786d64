package resilience

import (
	"context"
	"time"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/llm"
	"github.com/ashureev/ielts-coach/internal/stt"
)

// Recorder receives one observation per collaborator call, after retries.
type Recorder interface {
	RecordProviderRequest(ctx context.Context, kind, provider string, d time.Duration, err error)
}

// LLM decorates an llm.Provider with Policy and a Breaker.
type LLM struct {
	next     llm.Provider
	name     string
	policy   Policy
	breaker  *Breaker
	recorder Recorder
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps next. rec may be nil.
func NewLLM(next llm.Provider, name string, p Policy, rec Recorder) *LLM {
	return &LLM{
		next:     next,
		name:     name,
		policy:   p,
		breaker:  NewBreaker(BreakerConfig{Name: "llm/" + name}),
		recorder: rec,
	}
}

// Complete implements llm.Provider.
func (w *LLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	var resp *llm.Response
	err := Do(ctx, "llm/"+w.name, w.policy, w.breaker, func(ctx context.Context) error {
		var err error
		resp, err = w.next.Complete(ctx, req)
		return err
	})
	if w.recorder != nil {
		w.recorder.RecordProviderRequest(ctx, "llm", w.name, time.Since(start), err)
	}
	if err != nil {
		return nil, llm.AsCompletionError(w.name, err)
	}
	return resp, nil
}

// Breaker exposes the breaker for health reporting.
func (w *LLM) Breaker() *Breaker { return w.breaker }

// STT decorates an stt.Provider with Policy and a Breaker.
type STT struct {
	next     stt.Provider
	name     string
	policy   Policy
	breaker  *Breaker
	recorder Recorder
}

var _ stt.Provider = (*STT)(nil)

// NewSTT wraps next. rec may be nil.
func NewSTT(next stt.Provider, name string, p Policy, rec Recorder) *STT {
	return &STT{
		next:     next,
		name:     name,
		policy:   p,
		breaker:  NewBreaker(BreakerConfig{Name: "stt/" + name}),
		recorder: rec,
	}
}

// Transcribe implements stt.Provider.
func (w *STT) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	start := time.Now()
	var text string
	err := Do(ctx, "stt/"+w.name, w.policy, w.breaker, func(ctx context.Context) error {
		var err error
		text, err = w.next.Transcribe(ctx, pcm)
		return err
	})
	if w.recorder != nil {
		w.recorder.RecordProviderRequest(ctx, "stt", w.name, time.Since(start), err)
	}
	if err != nil {
		return "", stt.AsTranscriptionError(w.name, err)
	}
	return text, nil
}

// Breaker exposes the breaker for health reporting.
func (w *STT) Breaker() *Breaker { return w.breaker }
