package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const historyLimit = 50

// ChatResponder is the conversation engine as seen by the web chat.
type ChatResponder interface {
	Respond(ctx context.Context, req conversation.MessageRequest) (*conversation.ResponseEnvelope, error)
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

// Handler serves the browser chat over a websocket, answering synchronously.
type Handler struct {
	responder ChatResponder
	sessions  *SessionResolver
	logger    *logging.Logger
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "session", "history", "typing", "message", "audio", "error", "pong"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Audio     *AudioPayload    `json:"audio,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// AudioPayload is a voice reply.
type AudioPayload struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(responder ChatResponder, sessions *SessionResolver, logger *logging.Logger) *Handler {
	if responder == nil {
		panic("webchat: responder cannot be nil")
	}
	if sessions == nil {
		sessions = NewSessionResolver(nil, 0)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{responder: responder, sessions: sessions, logger: logger}
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessionFor(ctx, r)
	logger := h.logger.WithSession(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	if history := h.history(ctx, logger, sessionID); len(history) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
	}

	logger.Info("webchat: connection opened")
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}
		switch {
		case msg.Type == "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case msg.Type == "message" && strings.TrimSpace(msg.Text) != "":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})
			for _, out := range h.reply(ctx, logger, sessionID, msg.Text) {
				if err := websocket.JSON.Send(conn, out); err != nil {
					logger.Debug("webchat: send failed", "error", err)
					return
				}
			}
		}
	}
}

// reply runs one turn and renders it as widget messages.
func (h *Handler) reply(ctx context.Context, logger *logging.Logger, sessionID, text string) []OutboundMessage {
	env, err := h.responder.Respond(ctx, conversation.MessageRequest{SessionID: sessionID, Prompt: text})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Error("webchat: reply failed", "error", err)
		return []OutboundMessage{{Type: "error", Text: "Lo siento, tuve un problema al responder. ¿Puedes intentarlo de nuevo?"}}
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	switch c := env.Content.(type) {
	case conversation.AudioContent:
		out := []OutboundMessage{}
		if c.Caption != "" {
			out = append(out, OutboundMessage{Type: "message", Role: conversation.ChatRoleAssistant, Text: c.Caption, Timestamp: ts})
		}
		return append(out, OutboundMessage{
			Type:      "audio",
			Role:      conversation.ChatRoleAssistant,
			Audio:     &AudioPayload{MimeType: c.MimeType, Base64: c.Base64},
			Timestamp: ts,
		})
	case conversation.TextContent:
		return []OutboundMessage{{Type: "message", Role: conversation.ChatRoleAssistant, Text: c.Text, Timestamp: ts}}
	}
	return nil
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	turns, err := h.responder.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("webchat: failed to load history", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"session_id": sessionID, "messages": toHistory(turns, 0)})
}

func (h *Handler) sessionFor(ctx context.Context, r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" {
		return id
	}
	id, err := h.sessions.Resolve(ctx, r)
	if err != nil {
		h.logger.Warn("webchat: session store unavailable", "error", err)
	}
	return id
}

func (h *Handler) history(ctx context.Context, logger *logging.Logger, sessionID string) []HistoryMessage {
	turns, err := h.responder.History(ctx, sessionID)
	if err != nil {
		logger.Warn("webchat: failed to load history", "error", err)
		return nil
	}
	return toHistory(turns, historyLimit)
}

// toHistory converts turns, keeping the most recent limit entries when limit > 0.
func toHistory(turns []conversation.Turn, limit int) []HistoryMessage {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]HistoryMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, HistoryMessage{Role: t.Role, Text: t.Text, Timestamp: t.Timestamp.Format(time.RFC3339)})
	}
	return out
}
