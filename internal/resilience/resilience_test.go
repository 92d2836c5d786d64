package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/openai/openai-go"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/llm"
	llmmock "github.com/ashureev/ielts-coach/internal/llm/mock"
	"github.com/ashureev/ielts-coach/internal/stt"
	sttmock "github.com/ashureev/ielts-coach/internal/stt/mock"
)

var fastPolicy = Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Minute})
	b.now = func() time.Time { return now }

	fail := func() error { return errors.New("boom") }
	ok := func() error { return nil }

	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Fatalf("state after 1 failure = %v", b.State())
	}
	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("state after 2 failures = %v", b.State())
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn called while open")
	}

	now = now.Add(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after timeout = %v", b.State())
	}
	if err := b.Execute(ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state after successful probe = %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errors.New("x") })
	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "t", fastPolicy, nil, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestDoGivesUp(t *testing.T) {
	attempts := 0
	sentinel := errors.New("down")
	err := Do(context.Background(), "t", fastPolicy, nil, func(context.Context) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}
	if attempts != fastPolicy.MaxRetries+1 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestDoAttemptTimeout(t *testing.T) {
	p := Policy{AttemptTimeout: 10 * time.Millisecond}
	err := Do(context.Background(), "t", p, nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestDoStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, "t", Policy{MaxRetries: 5, BaseDelay: time.Hour}, nil, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("fail")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("err = %v attempts = %d", err, attempts)
	}
}

func TestDoStopsWhenBreakerOpens(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	attempts := 0
	err := Do(context.Background(), "t", fastPolicy, b, func(context.Context) error {
		attempts++
		return errors.New("fail")
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestDoIgnoresCallerCancellation(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		err := Do(ctx, "t", fastPolicy, b, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("disconnect %d: err = %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state after disconnects = %v", b.State())
	}
	if err := Do(context.Background(), "t", fastPolicy, b, func(context.Context) error { return nil }); err != nil {
		t.Errorf("healthy call after disconnects: %v", err)
	}
}

func TestBreakerNeutralOutcomeFreesProbe(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }
	_ = b.Execute(func() error { return errors.New("down") })
	now = now.Add(2 * time.Second)

	never := func(error) bool { return false }
	if err := b.ExecuteCounting(func() error { return context.Canceled }, never); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state after neutral probe = %v", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestDoDoesNotRetryRejectedRequests(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	calls := 0
	for i := 0; i < 3; i++ {
		err := Do(context.Background(), "t", fastPolicy, b, func(context.Context) error {
			calls++
			return fmt.Errorf("complete: %w", &stt.StatusError{Code: http.StatusBadRequest, Body: "context length exceeded"})
		})
		var se *stt.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("request %d: err = %v", i, err)
		}
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3", calls)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "t", fastPolicy, nil, func(context.Context) error {
		calls++
		return &stt.StatusError{Code: http.StatusServiceUnavailable}
	})
	if err == nil || calls != fastPolicy.MaxRetries+1 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"caller canceled", context.Canceled, false},
		{"attempt timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"circuit open", ErrCircuitOpen, false},
		{"transport", errors.New("connection reset by peer"), true},
		{"bad request", &stt.StatusError{Code: http.StatusBadRequest}, false},
		{"unauthorized", &stt.StatusError{Code: http.StatusUnauthorized}, false},
		{"rate limited", &stt.StatusError{Code: http.StatusTooManyRequests}, true},
		{"bad gateway", &stt.StatusError{Code: http.StatusBadGateway}, true},
		{"openai 400", &openai.Error{StatusCode: http.StatusBadRequest}, false},
		{"openai 500", &openai.Error{StatusCode: http.StatusInternalServerError}, true},
		{"anyllm rate limit", fmt.Errorf("gemini: %w", anyllmlib.ErrRateLimit), true},
		{"anyllm context length", fmt.Errorf("gemini: %w", anyllmlib.ErrContextLength), false},
		{"anyllm auth", anyllmlib.ErrAuthentication, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
	errs  int
}

func (f *fakeRecorder) RecordProviderRequest(_ context.Context, kind, provider string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind+"/"+provider)
	if err != nil {
		f.errs++
	}
}

func TestLLMWrapper(t *testing.T) {
	rec := &fakeRecorder{}
	inner := &llmmock.Provider{Err: errors.New("quota")}
	w := NewLLM(inner, "gemini", fastPolicy, rec)

	_, err := w.Complete(context.Background(), llm.Request{})
	if !errors.Is(err, llm.ErrCompletion) {
		t.Fatalf("err = %v", err)
	}
	if inner.CallCount() != 3 {
		t.Errorf("inner calls = %d", inner.CallCount())
	}
	if len(rec.calls) != 1 || rec.calls[0] != "llm/gemini" || rec.errs != 1 {
		t.Errorf("recorder = %+v", rec.calls)
	}

	inner.Err = nil
	inner.Content = "ok"
	resp, err := w.Complete(context.Background(), llm.Request{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("Complete = %v, %v", resp, err)
	}
}

func TestSTTWrapper(t *testing.T) {
	inner := &sttmock.Provider{Err: errors.New("503")}
	w := NewSTT(inner, "whisper", Policy{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)

	_, err := w.Transcribe(context.Background(), audio.PCM{})
	if !errors.Is(err, stt.ErrTranscription) {
		t.Fatalf("err = %v", err)
	}
	if len(inner.Calls()) != 2 {
		t.Errorf("calls = %d", len(inner.Calls()))
	}
}
