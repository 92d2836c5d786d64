//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/llm"
	"github.com/ashureev/ielts-coach/internal/resilience"
	"github.com/ashureev/ielts-coach/internal/session"
	"github.com/ashureev/ielts-coach/internal/stt"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("start: %w", exam.ErrUnknownTopic), http.StatusBadRequest, msgUnknownTopic},
		{exam.ErrEmptyInput, http.StatusBadRequest, msgEmptyText},
		{session.ErrNotFound, http.StatusConflict, msgNoSession},
		{exam.ErrNotStarted, http.StatusConflict, msgNoSession},
		{exam.ErrExamComplete, http.StatusConflict, msgExamComplete},
		{&audio.UnsupportedFormatError{Format: "unknown", Err: errors.New("junk")}, http.StatusUnsupportedMediaType, ""},
		{fmt.Errorf("mp3 longer than 10m0s: %w", audio.ErrTooLong), http.StatusRequestEntityTooLarge, msgTooLong},
		{stt.AsTranscriptionError("whisper", errors.New("down")), http.StatusBadGateway, ""},
		{llm.AsCompletionError("gemini", errors.New("quota")), http.StatusBadGateway, ""},
		{resilience.ErrCircuitOpen, http.StatusBadGateway, ""},
		{errors.New("disk on fire"), http.StatusInternalServerError, msgInternalError},
	}
	for _, tt := range tests {
		status, msg := classify(tt.err)
		if status != tt.status {
			t.Errorf("classify(%v) status = %d, want %d", tt.err, status, tt.status)
		}
		if tt.msg != "" && msg != tt.msg {
			t.Errorf("classify(%v) msg = %q, want %q", tt.err, msg, tt.msg)
		}
	}
}
