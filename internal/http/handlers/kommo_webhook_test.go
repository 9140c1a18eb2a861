package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
	"github.com/alejandria/sales-ai-platform/internal/pipeline"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

type recordingEnqueuer struct {
	jobs []string
	reqs []conversation.MessageRequest
	err  error
}

func (e *recordingEnqueuer) EnqueueMessage(_ context.Context, jobID string, req conversation.MessageRequest, _ ...pipeline.PublishOption) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, jobID)
	e.reqs = append(e.reqs, req)
	return nil
}

func newWebhookRouter(h *KommoWebhookHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/kommo/incoming/{scopeID}", h.HandleIncoming)
	r.Get("/kommo/jobs/{jobID}", h.JobStatus)
	return r
}

func postWebhook(t *testing.T, handler http.Handler, scope, body string) (*httptest.ResponseRecorder, WebhookResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/kommo/incoming/"+scope, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var resp WebhookResponse
	if w.Code != http.StatusNotFound {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestKommoWebhookQueuesMessage(t *testing.T) {
	enq := &recordingEnqueuer{}
	jobs := pipeline.NewMemoryJobStore()
	h := NewKommoWebhookHandler("scope-1", enq, jobs, nil, logging.New("error"))
	h.newID = func() string { return "job-1" }

	body := `{"message":{"add":[{"chat_id":"chat-9","text":"Hola, necesito una tesis","entity_id":"4242"}]}}`
	w, resp := postWebhook(t, newWebhookRouter(h), "scope-1", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "job-1", resp.JobID)
	require.Len(t, enq.reqs, 1)
	assert.Equal(t, int64(4242), enq.reqs[0].LeadID)
	assert.Equal(t, "chat-9", enq.reqs[0].ConversationID)
	assert.Equal(t, "chat-9", enq.reqs[0].SessionID)
	assert.Equal(t, "Hola, necesito una tesis", enq.reqs[0].Prompt)

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.JobStatusPending, job.Status)
	assert.Equal(t, int64(4242), job.LeadID)
}

func TestKommoWebhookAcceptsFormEncodedBody(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewKommoWebhookHandler("scope-1", enq, pipeline.NewMemoryJobStore(), nil, logging.New("error"))

	form := url.Values{
		"account[subdomain]":         {"alejandria"},
		"message[add][0][chat_id]":   {"chat-9"},
		"message[add][0][entity_id]": {"4242"},
		"message[add][0][text]":      {"Hola, necesito una tesis"},
	}
	req := httptest.NewRequest(http.MethodPost, "/kommo/incoming/scope-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, enq.reqs, 1)
	assert.Equal(t, int64(4242), enq.reqs[0].LeadID)
	assert.Equal(t, "chat-9", enq.reqs[0].ConversationID)
	assert.Equal(t, "Hola, necesito una tesis", enq.reqs[0].Prompt)
}

func TestKommoWebhookIgnoresAndValidates(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ignored bool
		errMsg  string
	}{
		{name: "not a message event", body: `{"leads":{"status":[{"id":"1"}]}}`, ignored: true},
		{name: "voice only", body: `{"message":{"add":[{"chat_id":"c","entity_id":"1","attachment":{"type":"voice","link":"https://x/voice.ogg"}}]}}`, ignored: true},
		{name: "empty prompt", body: `{"message":{"add":[{"chat_id":"c","entity_id":"1","text":"  "}]}}`, errMsg: "empty prompt"},
		{name: "missing conversation", body: `{"message":{"add":[{"text":"hola","entity_id":"1"}]}}`, errMsg: "missing conversationId"},
		{name: "missing lead", body: `{"message":{"add":[{"chat_id":"c","text":"hola"}]}}`, errMsg: "missing leadId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enq := &recordingEnqueuer{}
			h := NewKommoWebhookHandler("", enq, pipeline.NewMemoryJobStore(), nil, logging.New("error"))

			w, resp := postWebhook(t, newWebhookRouter(h), "any", tt.body)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.ignored, resp.Ignored)
			assert.Equal(t, tt.errMsg, resp.Error)
			assert.Equal(t, tt.ignored, resp.Success)
			assert.Empty(t, enq.reqs)
		})
	}
}

func TestKommoWebhookDocumentAttachment(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewKommoWebhookHandler("", enq, pipeline.NewMemoryJobStore(), nil, logging.New("error"))

	body := `{"message":{"add":[{"chat_id":"c","element_id":"7","attachment":{"type":"file","link":"https://files/x","file_name":"avance.docx"}}]}}`
	w, _ := postWebhook(t, newWebhookRouter(h), "any", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, enq.reqs, 1)
	require.NotNil(t, enq.reqs[0].Document)
	assert.Equal(t, "avance.docx", enq.reqs[0].Document.Name)
	assert.Equal(t, "https://files/x", enq.reqs[0].Document.URL)
	assert.Equal(t, int64(7), enq.reqs[0].LeadID)
}

func TestKommoWebhookRejectsUnknownScope(t *testing.T) {
	h := NewKommoWebhookHandler("scope-1", &recordingEnqueuer{}, pipeline.NewMemoryJobStore(), nil, logging.New("error"))
	w, _ := postWebhook(t, newWebhookRouter(h), "other", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKommoWebhookEnqueueFailure(t *testing.T) {
	h := NewKommoWebhookHandler("", &recordingEnqueuer{err: errors.New("sqs down")}, pipeline.NewMemoryJobStore(), nil, logging.New("error"))
	w, resp := postWebhook(t, newWebhookRouter(h), "any", `{"message":{"add":[{"chat_id":"c","entity_id":"1","text":"hola"}]}}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
}

func TestKommoWebhookInvalidJSON(t *testing.T) {
	h := NewKommoWebhookHandler("", &recordingEnqueuer{}, pipeline.NewMemoryJobStore(), nil, logging.New("error"))
	w, resp := postWebhook(t, newWebhookRouter(h), "any", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid body", resp.Error)
}

func TestJobStatus(t *testing.T) {
	jobs := pipeline.NewMemoryJobStore()
	require.NoError(t, jobs.PutPending(context.Background(), &pipeline.JobRecord{JobID: "job-7"}))
	require.NoError(t, jobs.MarkCompleted(context.Background(), "job-7", &pipeline.Result{Success: true, Type: pipeline.TypeText}))
	router := newWebhookRouter(NewKommoWebhookHandler("", &recordingEnqueuer{}, jobs, nil, logging.New("error")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/kommo/jobs/job-7", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var job pipeline.JobRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, pipeline.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, pipeline.TypeText, job.Result.Type)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/kommo/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKommoWebhookLogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Level: "info", Output: &buf})
	h := NewKommoWebhookHandler("", &recordingEnqueuer{}, pipeline.NewMemoryJobStore(), nil, logger)

	r := chi.NewRouter()
	r.Use(httpmiddleware.RequestLogger(logging.New("error")))
	r.Post("/kommo/incoming/{scopeID}", h.HandleIncoming)

	req := httptest.NewRequest(http.MethodPost, "/kommo/incoming/any", strings.NewReader(`{"message":{"add":[{"chat_id":"c","entity_id":"1","text":"hola"}]}}`))
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), "message queued")
}
