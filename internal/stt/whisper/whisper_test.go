package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/stt"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		wav, _ := io.ReadAll(f)
		if hdr.Filename != "audio.wav" || string(wav[:4]) != "RIFF" {
			t.Errorf("unexpected upload %q (%d bytes)", hdr.Filename, len(wav))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  I usually cook at home. \n"}`)
	}))
	defer srv.Close()

	p, err := New(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	text, err := p.Transcribe(context.Background(), audio.PCM{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I usually cook at home." {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http 500", http.StatusInternalServerError, "boom"},
		{"bad json", http.StatusOK, "not json"},
		{"server error field", http.StatusOK, `{"error":"failed to read WAV"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			_, err := p.Transcribe(context.Background(), audio.PCM{Data: []byte{0, 1}, SampleRate: 16000, Channels: 1})
			if !errors.Is(err, stt.ErrTranscription) {
				t.Fatalf("expected TranscriptionError, got %v", err)
			}
		})
	}
}

func TestTranscribeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad wav", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Transcribe(context.Background(), audio.PCM{Data: []byte{0, 1}, SampleRate: 16000, Channels: 1})
	var se *stt.StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty URL")
	}
}
