// Package api provides the HTTP and WebSocket front end of the exam coach.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/identity"
	"github.com/ashureev/ielts-coach/internal/llm"
	"github.com/ashureev/ielts-coach/internal/resilience"
	"github.com/ashureev/ielts-coach/internal/session"
	"github.com/ashureev/ielts-coach/internal/stt"
	"github.com/ashureev/ielts-coach/internal/transcript"
)

// DefaultMaxUploadBytes caps /upload-audio/ bodies when no option is given.
const DefaultMaxUploadBytes = 25 << 20

// Normalizer turns uploaded bytes into 16 kHz mono PCM.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) (audio.PCM, error)
}

// NormalizeRecorder receives the latency of every normalization.
type NormalizeRecorder interface {
	RecordNormalize(ctx context.Context, format string, d time.Duration, err error)
}

// Handler serves the exam endpoints. Session state lives in the session
// manager, so a Handler is safe for concurrent use.
type Handler struct {
	sessions    *session.Manager
	ctrl        *exam.Controller
	normalizer  Normalizer
	transcriber stt.Provider

	maxUpload     int64
	normRecorder  NormalizeRecorder
	transcript    transcript.Logger
	allowedOrigin string
	isDev         bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxUploadBytes caps the size of uploaded audio.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithNormalizeRecorder reports normalization latency to rec.
func WithNormalizeRecorder(rec NormalizeRecorder) Option {
	return func(h *Handler) { h.normRecorder = rec }
}

// WithTranscript appends every exchange to log.
func WithTranscript(log transcript.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.transcript = log
		}
	}
}

// WithAllowedOrigin restricts WebSocket upgrades outside development.
func WithAllowedOrigin(origin string, isDev bool) Option {
	return func(h *Handler) {
		h.allowedOrigin = origin
		h.isDev = isDev
	}
}

// NewHandler creates a Handler with its collaborators.
func NewHandler(sessions *session.Manager, ctrl *exam.Controller, norm Normalizer, transcriber stt.Provider, opts ...Option) *Handler {
	h := &Handler{
		sessions:    sessions,
		ctrl:        ctrl,
		normalizer:  norm,
		transcriber: transcriber,
		maxUpload:   DefaultMaxUploadBytes,
		transcript:  transcript.Nop{},
		isDev:       true,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Error messages shared by the HTTP and WebSocket front ends.
const (
	msgInvalidBody   = "Invalid request body"
	msgUnknownTopic  = "Unknown topic"
	msgEmptyText     = "Empty text"
	msgNoSession     = "No active session"
	msgNoFile        = "No file uploaded"
	msgExamComplete  = "Exam complete"
	msgFileTooLarge  = "File too large"
	msgTooLong       = "Recording too long"
	msgInternalError = "Internal server error"
)

// classify maps a domain error onto an HTTP status and client message.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, exam.ErrUnknownTopic):
		return http.StatusBadRequest, msgUnknownTopic
	case errors.Is(err, exam.ErrEmptyInput):
		return http.StatusBadRequest, msgEmptyText
	case errors.Is(err, session.ErrNotFound), errors.Is(err, exam.ErrNotStarted):
		return http.StatusConflict, msgNoSession
	case errors.Is(err, exam.ErrExamComplete):
		return http.StatusConflict, msgExamComplete
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, msgFileTooLarge
	case errors.Is(err, audio.ErrTooLong):
		return http.StatusRequestEntityTooLarge, msgTooLong
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, stt.ErrTranscription),
		errors.Is(err, llm.ErrCompletion),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

// fail logs err at a level matching its class and writes the error body.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	log := requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "status", status, "error", err)
	} else {
		log.Info("Request rejected", "status", status, "error", err)
	}
	Error(w, status, msg)
}

// requestLogger returns the default logger annotated with request identity.
func requestLogger(r *http.Request) *slog.Logger {
	ctx := r.Context()
	return slog.With(
		"request_id", chiMiddleware.GetReqID(ctx),
		"user_id", identity.UserIDFromContext(ctx),
		"session_id", identity.SessionIDFromContext(ctx),
	)
}

// sessionKey resolves the exam session for the caller.
func sessionKey(ctx context.Context) string {
	return session.Key(identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}

// logExchange writes the candidate input (if any) and the examiner reply
// to the transcript.
func (h *Handler) logExchange(ctx context.Context, channel, eventType, input string, reply exam.Reply) {
	base := transcript.Event{
		UserID:    identity.UserIDFromContext(ctx),
		SessionID: identity.SessionIDFromContext(ctx),
		Channel:   channel,
		Phase:     reply.Phase.String(),
	}
	if input != "" {
		e := base
		e.EventType = eventType
		if eventType == transcript.EventExamStarted {
			e.Topic = input
		} else {
			e.Content = input
		}
		h.transcript.Log(e)
	}
	if reply.PhaseChanged {
		e := base
		e.EventType = transcript.EventPhaseChanged
		h.transcript.Log(e)
	}
	e := base
	e.EventType = transcript.EventExaminerQuestion
	e.Content = reply.Question
	h.transcript.Log(e)
}
