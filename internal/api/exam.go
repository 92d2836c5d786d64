package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/ielts-coach/internal/audio"
	"github.com/ashureev/ielts-coach/internal/domain"
	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/transcript"
)

const maxJSONBody = 1 << 20

// Transcript channels.
const (
	channelHTTP = "http"
	channelWS   = "ws"
)

type startRequest struct {
	Topic string `json:"topic"`
}

// answerRequest carries the candidate's answer. Topic is accepted for
// compatibility but the session's own topic always wins.
type answerRequest struct {
	Text  string `json:"text"`
	Topic string `json:"topic,omitempty"`
}

type questionResponse struct {
	Question string `json:"question"`
	Phase    string `json:"phase,omitempty"`
}

type sessionResponse struct {
	Topic         string        `json:"topic"`
	Phase         string        `json:"phase"`
	QuestionCount int           `json:"question_count"`
	History       []domain.Turn `json:"history"`
}

// RegisterRoutes mounts the exam endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/topics/", h.Topics)
	r.Post("/start/", h.Start)
	r.Post("/answer/", h.Answer)
	r.Post("/next/", h.Next)
	r.Post("/upload-audio/", h.UploadAudio)
	r.Get("/session/", h.GetSession)
	r.Delete("/session/", h.DeleteSession)
	r.Get("/ws/exam", h.ServeWS)
}

// Topics lists the selectable topics.
func (h *Handler) Topics(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, len(domain.Topics))
	for i, t := range domain.Topics {
		names[i] = t.String()
	}
	JSON(w, http.StatusOK, map[string][]string{"topics": names})
}

// Start begins a new exam on the requested topic, discarding any previous
// progress for this session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.start(r.Context(), sessionKey(r.Context()), req.Topic)
	if err != nil {
		fail(w, r, err)
		return
	}
	requestLogger(r).Info("Exam started", "topic", strings.TrimSpace(req.Topic))
	h.logExchange(r.Context(), channelHTTP, transcript.EventExamStarted, strings.TrimSpace(req.Topic), reply)
	JSON(w, http.StatusOK, questionResponse{Question: reply.Question, Phase: reply.Phase.String()})
}

// Answer submits the candidate's answer and returns the next question.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, msgEmptyText)
		return
	}

	reply, err := h.answer(r.Context(), sessionKey(r.Context()), req.Text)
	if err != nil {
		fail(w, r, err)
		return
	}
	if reply.PhaseChanged {
		requestLogger(r).Info("Exam advanced", "phase", reply.Phase.String())
	}
	h.logExchange(r.Context(), channelHTTP, transcript.EventCandidateAnswer, strings.TrimSpace(req.Text), reply)
	JSON(w, http.StatusOK, questionResponse{Question: reply.Question, Phase: reply.Phase.String()})
}

// Next moves the exam to its following part.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	reply, err := h.next(r.Context(), sessionKey(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	requestLogger(r).Info("Exam advanced", "phase", reply.Phase.String())
	h.logExchange(r.Context(), channelHTTP, "", "", reply)
	JSON(w, http.StatusOK, questionResponse{Question: reply.Question, Phase: reply.Phase.String()})
}

// UploadAudio transcribes an uploaded recording. It does not touch the exam
// session; the client submits the transcript through /answer/.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, err)
			return
		}
		Error(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() {
			if rmErr := r.MultipartForm.RemoveAll(); rmErr != nil {
				requestLogger(r).Warn("Failed to remove multipart temp files", "error", rmErr)
			}
		}()
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		fail(w, r, err)
		return
	}

	text, err := h.transcribe(r.Context(), raw)
	if err != nil {
		fail(w, r, err)
		return
	}
	requestLogger(r).Info("Audio transcribed", "filename", header.Filename, "bytes", len(raw), "chars", len(text))
	JSON(w, http.StatusOK, map[string]string{"transcript": text})
}

// GetSession returns the caller's exam state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), sessionKey(r.Context()))
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusConflict {
			status = http.StatusNotFound
		}
		Error(w, status, msg)
		return
	}
	history := []domain.Turn(s.History)
	if history == nil {
		history = []domain.Turn{}
	}
	JSON(w, http.StatusOK, sessionResponse{
		Topic:         s.Topic.String(),
		Phase:         s.Phase.String(),
		QuestionCount: s.QuestionCount,
		History:       history,
	})
}

// DeleteSession ends the caller's exam.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), sessionKey(r.Context())); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) start(ctx context.Context, key, topic string) (exam.Reply, error) {
	var reply exam.Reply
	_, err := h.sessions.Begin(ctx, key, func(s *domain.ExamSession) error {
		var err error
		reply, err = h.ctrl.Start(ctx, s, topic)
		return err
	})
	return reply, err
}

func (h *Handler) answer(ctx context.Context, key, text string) (exam.Reply, error) {
	var reply exam.Reply
	_, err := h.sessions.Update(ctx, key, func(s *domain.ExamSession) error {
		var err error
		reply, err = h.ctrl.Submit(ctx, s, text)
		return err
	})
	return reply, err
}

func (h *Handler) next(ctx context.Context, key string) (exam.Reply, error) {
	var reply exam.Reply
	_, err := h.sessions.Update(ctx, key, func(s *domain.ExamSession) error {
		var err error
		reply, err = h.ctrl.Advance(ctx, s)
		return err
	})
	return reply, err
}

func (h *Handler) transcribe(ctx context.Context, raw []byte) (string, error) {
	start := time.Now()
	pcm, err := h.normalizer.Normalize(ctx, raw)
	if h.normRecorder != nil {
		h.normRecorder.RecordNormalize(ctx, audio.Detect(raw), time.Since(start), err)
	}
	if err != nil {
		return "", err
	}
	return h.transcriber.Transcribe(ctx, pcm)
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}
