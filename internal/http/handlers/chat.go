package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/alejandria/sales-ai-platform/internal/archive"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/webchat"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const maxUploadBytes = 10 << 20

// ChatResponder runs one conversation turn.
type ChatResponder interface {
	Respond(ctx context.Context, req conversation.MessageRequest) (*conversation.ResponseEnvelope, error)
}

// AttachmentStore archives uploaded documents.
type AttachmentStore interface {
	PutAttachment(ctx context.Context, sessionID, name, mimeType string, data []byte) (*archive.Attachment, error)
}

// ChatHandler serves the direct chat endpoint used by the website widget.
type ChatHandler struct {
	responder   ChatResponder
	sessions    *webchat.SessionResolver
	attachments AttachmentStore
	logger      *logging.Logger
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Success   bool                           `json:"success"`
	Prompt    string                         `json:"prompt,omitempty"`
	SessionID string                         `json:"sessionId,omitempty"`
	Response  *conversation.ResponseEnvelope `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

// NewChatHandler creates the chat handler. attachments may be nil.
func NewChatHandler(responder ChatResponder, sessions *webchat.SessionResolver, attachments AttachmentStore, logger *logging.Logger) *ChatHandler {
	if responder == nil {
		panic("handlers: responder cannot be nil")
	}
	if sessions == nil {
		sessions = webchat.NewSessionResolver(nil, 0)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{responder: responder, sessions: sessions, attachments: attachments, logger: logger}
}

// Chat handles POST /chat. The body is multipart (prompt, file) or JSON {"prompt"}.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := h.sessions.Resolve(ctx, r)
	if err != nil {
		h.logger.Warn("chat: session store unavailable", "error", err)
	}
	logger := h.logger.WithSession(sessionID)

	var (
		prompt string
		doc    *conversation.Attachment
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, ChatResponse{Error: "invalid form"})
			return
		}
		prompt = strings.TrimSpace(r.FormValue("prompt"))
		var status int
		doc, status, err = h.readUpload(ctx, r, sessionID)
		if err != nil {
			logger.Info("chat: upload rejected", "error", err)
			writeJSON(w, status, ChatResponse{Error: err.Error()})
			return
		}
	} else {
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, ChatResponse{Error: "invalid body"})
			return
		}
		prompt = strings.TrimSpace(body.Prompt)
	}

	if prompt == "" && doc == nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{Error: "empty prompt"})
		return
	}

	env, err := h.responder.Respond(ctx, conversation.MessageRequest{SessionID: sessionID, Prompt: prompt, Document: doc})
	if err != nil {
		logger.Error("chat: reply failed", "error", err)
		writeJSON(w, http.StatusBadGateway, ChatResponse{SessionID: sessionID, Prompt: prompt, Error: "failed to generate reply"})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Success: true, Prompt: prompt, SessionID: sessionID, Response: env})
}

var (
	errAudioUpload       = errors.New("audio uploads are not supported")
	errUnsupportedUpload = errors.New("unsupported file type")
	errUploadRead        = errors.New("could not read file")
)

// readUpload returns the uploaded document, or nil when no file was sent.
func (h *ChatHandler) readUpload(ctx context.Context, r *http.Request, sessionID string) (*conversation.Attachment, int, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, http.StatusBadRequest, errUploadRead
	}
	defer file.Close()

	name := header.Filename
	mimeType := header.Header.Get("Content-Type")
	switch {
	case archive.IsAudio(name, mimeType):
		return nil, http.StatusUnsupportedMediaType, errAudioUpload
	case !archive.IsDocument(name, mimeType):
		return nil, http.StatusUnsupportedMediaType, errUnsupportedUpload
	}

	doc := &conversation.Attachment{Name: name, MimeType: archive.DocumentMimeType(name, mimeType)}
	if h.attachments == nil {
		return doc, 0, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusBadRequest, errUploadRead
	}
	stored, err := h.attachments.PutAttachment(ctx, sessionID, name, doc.MimeType, data)
	if err != nil {
		// The turn only needs to know a document arrived.
		h.logger.Error("chat: failed to archive upload", "error", err, "session_id", sessionID)
		return doc, 0, nil
	}
	doc.StorageKey = stored.Key
	return doc, 0, nil
}
