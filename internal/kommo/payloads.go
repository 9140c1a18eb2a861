package kommo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alejandria/sales-ai-platform/internal/leads"
)

type tagRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type leadPayload struct {
	ID         int64 `json:"id"`
	PipelineID int64 `json:"pipeline_id"`
	StatusID   int64 `json:"status_id"`
	Embedded   struct {
		Tags []tagRef `json:"tags"`
	} `json:"_embedded"`
}

func (p leadPayload) toLead() *leads.Lead {
	lead := &leads.Lead{ID: p.ID, PipelineID: p.PipelineID, StatusID: p.StatusID}
	for _, tag := range p.Embedded.Tags {
		lead.Tags = append(lead.Tags, tag.Name)
	}
	return lead
}

type leadUpdate struct {
	ID         int64    `json:"id"`
	PipelineID int64    `json:"pipeline_id,omitempty"`
	StatusID   int64    `json:"status_id,omitempty"`
	TagsToAdd  []tagRef `json:"tags_to_add,omitempty"`
}

type chatMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileUUID string `json:"file_uuid,omitempty"`
}

type chatMessageRequest struct {
	Message        chatMessage `json:"message"`
	ConversationID string      `json:"conversation_id"`
}

// APIError is a non-2xx Kommo response.
type APIError struct {
	StatusCode int    `json:"-"`
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Title)
	if e.Detail != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Detail
	}
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("kommo: api error (%d): %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}

// WebhookAttachment is a file sent by the client through the chat.
type WebhookAttachment struct {
	Type     string `json:"type"`
	Link     string `json:"link"`
	FileName string `json:"file_name"`
}

// MessageAdd is one entry of a message.add webhook.
type MessageAdd struct {
	ID           string             `json:"id"`
	ChatID       string             `json:"chat_id"`
	TalkID       string             `json:"talk_id"`
	ContactID    string             `json:"contact_id"`
	Text         *string            `json:"text"`
	TextOriginal *string            `json:"text_original"`
	ElementID    json.Number        `json:"element_id"`
	EntityID     json.Number        `json:"entity_id"`
	Type         string             `json:"type"`
	Origin       string             `json:"origin"`
	Attachment   *WebhookAttachment `json:"attachment"`
}

// WebhookBody is the JSON body Kommo posts for chat events.
type WebhookBody struct {
	Account *struct {
		ID        string `json:"id"`
		Subdomain string `json:"subdomain"`
	} `json:"account,omitempty"`
	Message *struct {
		Add []MessageAdd `json:"add"`
	} `json:"message,omitempty"`
}

// FirstMessage returns message.add[0], or nil for other events.
func (b *WebhookBody) FirstMessage() *MessageAdd {
	if b == nil || b.Message == nil || len(b.Message.Add) == 0 {
		return nil
	}
	return &b.Message.Add[0]
}

// Prompt returns text, falling back to text_original.
func (m *MessageAdd) Prompt() string {
	if m.Text != nil {
		if t := strings.TrimSpace(*m.Text); t != "" {
			return t
		}
	}
	if m.TextOriginal != nil {
		return strings.TrimSpace(*m.TextOriginal)
	}
	return ""
}

// VoiceLink returns the voice note URL, if the client sent one.
func (m *MessageAdd) VoiceLink() string {
	if m.Attachment != nil && m.Attachment.Type == "voice" {
		return m.Attachment.Link
	}
	return ""
}

// Document returns the attached file when it is a document rather than media.
func (m *MessageAdd) Document() *WebhookAttachment {
	if m.Attachment == nil {
		return nil
	}
	switch m.Attachment.Type {
	case "file", "document":
		return m.Attachment
	}
	return nil
}

// LeadID parses entity_id, falling back to element_id. Zero means missing.
func (m *MessageAdd) LeadID() int64 {
	for _, raw := range []json.Number{m.EntityID, m.ElementID} {
		if id, err := strconv.ParseInt(strings.TrimSpace(raw.String()), 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
