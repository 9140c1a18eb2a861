package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alejandria/sales-ai-platform/internal/archive"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
	"github.com/alejandria/sales-ai-platform/internal/kommo"
	"github.com/alejandria/sales-ai-platform/internal/observability/metrics"
	"github.com/alejandria/sales-ai-platform/internal/pipeline"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const maxWebhookBody = 1 << 20

// MessageEnqueuer queues an inbound message for the conversation worker.
type MessageEnqueuer interface {
	EnqueueMessage(ctx context.Context, jobID string, req conversation.MessageRequest, opts ...pipeline.PublishOption) error
}

// KommoWebhookHandler accepts Kommo chat webhooks and queues them.
type KommoWebhookHandler struct {
	scopeID   string
	publisher MessageEnqueuer
	jobs      pipeline.JobRecorder
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	newID     func() string
}

// WebhookResponse is the body returned to Kommo.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Ignored bool   `json:"ignored,omitempty"`
	Reason  string `json:"reason,omitempty"`
	JobID   string `json:"jobId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewKommoWebhookHandler creates the webhook handler. An empty scopeID accepts
// any scope in the URL.
func NewKommoWebhookHandler(scopeID string, publisher MessageEnqueuer, jobs pipeline.JobRecorder, m *metrics.ConversationMetrics, logger *logging.Logger) *KommoWebhookHandler {
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if jobs == nil {
		panic("handlers: job recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &KommoWebhookHandler{
		scopeID:   strings.TrimSpace(scopeID),
		publisher: publisher,
		jobs:      jobs,
		metrics:   m,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// HandleIncoming handles POST /kommo/incoming/{scopeID}.
func (h *KommoWebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	if h.scopeID != "" && chi.URLParam(r, "scopeID") != h.scopeID {
		h.metrics.ObserveWebhook("unknown", "rejected")
		http.NotFound(w, r)
		return
	}

	body, err := decodeWebhook(w, r)
	if err != nil {
		h.logger.Warn("kommo webhook: invalid body", "error", err)
		h.metrics.ObserveWebhook("unknown", "invalid")
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Error: "invalid body"})
		return
	}

	add := body.FirstMessage()
	if add == nil {
		h.metrics.ObserveWebhook("other", "ignored")
		writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Ignored: true, Reason: "not a message.add event"})
		return
	}

	req := conversation.MessageRequest{
		SessionID:      add.ChatID,
		ConversationID: add.ChatID,
		LeadID:         add.LeadID(),
		Prompt:         add.Prompt(),
	}
	if doc := add.Document(); doc != nil && archive.IsDocument(doc.FileName, "") {
		req.Document = &conversation.Attachment{
			Name:     doc.FileName,
			MimeType: archive.DocumentMimeType(doc.FileName, ""),
			URL:      doc.Link,
		}
	}
	logger := h.logger.WithLead(req.LeadID, req.ConversationID)
	if requestID := httpmiddleware.RequestIDFromContext(r.Context()); requestID != "" {
		logger = logger.With("request_id", requestID)
	}

	// Voice notes are not transcribed here.
	if req.Prompt == "" && req.Document == nil && add.VoiceLink() != "" {
		logger.Info("kommo webhook: voice message without text ignored")
		h.metrics.ObserveWebhook("message.add", "ignored")
		writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Ignored: true, Reason: "voice message without text"})
		return
	}

	if err := req.Validate(); err != nil {
		logger.Info("kommo webhook: invalid message", "error", err)
		h.metrics.ObserveWebhook("message.add", "invalid")
		writeJSON(w, http.StatusOK, WebhookResponse{Error: pipeline.ValidationReason(err)})
		return
	}

	jobID := h.newID()
	if err := h.jobs.PutPending(r.Context(), &pipeline.JobRecord{JobID: jobID, Request: &req}); err != nil {
		logger.Error("kommo webhook: failed to record job", "error", err, "job_id", jobID)
		h.metrics.ObserveWebhook("message.add", "error")
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Error: "failed to queue message"})
		return
	}
	if err := h.publisher.EnqueueMessage(r.Context(), jobID, req); err != nil {
		logger.Error("kommo webhook: failed to enqueue", "error", err, "job_id", jobID)
		h.metrics.ObserveWebhook("message.add", "error")
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Error: "failed to queue message"})
		return
	}

	logger.Info("kommo webhook: message queued", "job_id", jobID)
	h.metrics.ObserveWebhook("message.add", "accepted")
	writeJSON(w, http.StatusAccepted, WebhookResponse{Success: true, JobID: jobID})
}

// decodeWebhook reads the JSON or form-encoded body Kommo posts.
func decodeWebhook(w http.ResponseWriter, r *http.Request) (*kommo.WebhookBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return kommo.ParseWebhookForm(r.PostForm)
	}
	var body kommo.WebhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

// JobStatus handles GET /kommo/jobs/{jobID}.
func (h *KommoWebhookHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, pipeline.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
