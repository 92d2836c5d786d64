package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/ielts-coach/internal/exam"
	"github.com/ashureev/ielts-coach/internal/transcript"
)

const wsWriteTimeout = 10 * time.Second

// wsRequest is a client message on /ws/exam.
type wsRequest struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Text  string `json:"text,omitempty"`
}

// wsReply is a server message on /ws/exam.
type wsReply struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ServeWS runs an exam over a WebSocket. Messages are handled one at a time
// against the same session the HTTP endpoints use.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "exam ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx := r.Context()
	key := sessionKey(ctx)
	log.Info("Exam socket opened")

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		out := h.dispatch(ctx, key, data)
		if err := writeWS(ctx, ws, out); err != nil {
			log.Debug("WebSocket write error", "error", err)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, key string, data []byte) wsReply {
	var msg wsRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return wsReply{Type: "error", Error: msgInvalidBody}
	}

	var (
		reply exam.Reply
		err   error
	)
	var eventType, input string
	switch msg.Type {
	case "start":
		reply, err = h.start(ctx, key, msg.Topic)
		eventType, input = transcript.EventExamStarted, strings.TrimSpace(msg.Topic)
	case "answer":
		reply, err = h.answer(ctx, key, msg.Text)
		eventType, input = transcript.EventCandidateAnswer, strings.TrimSpace(msg.Text)
	case "next":
		reply, err = h.next(ctx, key)
	case "ping":
		return wsReply{Type: "pong"}
	default:
		return wsReply{Type: "error", Error: "Unknown message type"}
	}
	if err != nil {
		status, text := classify(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Exam socket request failed", "type", msg.Type, "error", err)
		}
		return wsReply{Type: "error", Error: text}
	}
	h.logExchange(ctx, channelWS, eventType, input, reply)
	return wsReply{Type: "question", Question: reply.Question, Phase: reply.Phase.String()}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeWS(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
