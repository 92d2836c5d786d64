// Package app assembles collaborators from configuration for both the HTTP
// server and the command-line coach.
package app

import (
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ashureev/ielts-coach/internal/config"
	"github.com/ashureev/ielts-coach/internal/llm"
	"github.com/ashureev/ielts-coach/internal/llm/anyllm"
	llmopenai "github.com/ashureev/ielts-coach/internal/llm/openai"
	"github.com/ashureev/ielts-coach/internal/resilience"
	"github.com/ashureev/ielts-coach/internal/stt"
	sttopenai "github.com/ashureev/ielts-coach/internal/stt/openai"
	"github.com/ashureev/ielts-coach/internal/stt/whisper"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

// NewLLM builds the configured chat backend wrapped with timeout, retry and
// a circuit breaker. rec may be nil.
func NewLLM(cfg config.LLMConfig, rec resilience.Recorder) (*resilience.LLM, error) {
	base, err := newLLMBackend(cfg)
	if err != nil {
		return nil, err
	}
	policy := resilience.Policy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      retryBaseDelay,
		MaxDelay:       retryMaxDelay,
		AttemptTimeout: cfg.Timeout,
	}
	return resilience.NewLLM(base, cfg.Provider, policy, rec), nil
}

func newLLMBackend(cfg config.LLMConfig) (llm.Provider, error) {
	// openai goes through openai-go directly; every other backend is served
	// by any-llm-go.
	if cfg.Provider == "openai" {
		var opts []llmopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
		}
		p, err := llmopenai.New(cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		return p, nil
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" && cfg.Provider != "ollama" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	p, err := anyllm.New(cfg.Provider, cfg.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return p, nil
}

// NewSTT builds the configured transcription backend with the same
// resilience wrapping as NewLLM.
func NewSTT(cfg config.STTConfig, rec resilience.Recorder) (*resilience.STT, error) {
	base, err := newSTTBackend(cfg)
	if err != nil {
		return nil, err
	}
	policy := resilience.Policy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      retryBaseDelay,
		MaxDelay:       retryMaxDelay,
		AttemptTimeout: cfg.Timeout,
	}
	return resilience.NewSTT(base, cfg.Provider, policy, rec), nil
}

func newSTTBackend(cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Provider {
	case "whisper":
		var opts []whisper.Option
		if cfg.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		p, err := whisper.New(cfg.BaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("stt: %w", err)
		}
		return p, nil
	case "openai":
		var opts []sttopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, sttopenai.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, sttopenai.WithLanguage(cfg.Language))
		}
		p, err := sttopenai.New(cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("stt: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("stt: unsupported provider %q", cfg.Provider)
	}
}
