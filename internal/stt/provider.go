// Package stt defines the speech-to-text capability used to turn a candidate's
// recorded answer into text.
//
// Implementations receive normalized audio (16 kHz mono s16le) and must be safe
// for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/ielts-coach/internal/audio"
)

// Provider transcribes one complete utterance.
type Provider interface {
	Transcribe(ctx context.Context, pcm audio.PCM) (string, error)
}

// ErrTranscription matches every *TranscriptionError via errors.Is.
var ErrTranscription = errors.New("transcription failed")

// TranscriptionError reports a failed or unusable response from the
// transcription collaborator.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("transcription failed: %v", e.Err)
	}
	return fmt.Sprintf("transcription failed (%s): %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTranscription) match.
func (e *TranscriptionError) Is(target error) bool { return target == ErrTranscription }

// AsTranscriptionError wraps err unless it already is a TranscriptionError.
func AsTranscriptionError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *TranscriptionError
	if errors.As(err, &te) {
		return err
	}
	return &TranscriptionError{Provider: provider, Err: err}
}

// StatusError is a non-200 answer from an HTTP transcription server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned HTTP %d: %s", e.Code, e.Body)
}

// HTTPStatus returns the status code the server answered with.
func (e *StatusError) HTTPStatus() int { return e.Code }
