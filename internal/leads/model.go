package leads

import (
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
)

// Category is the CRM-facing bucket a lead tag falls into.
type Category string

const (
	CategoryNone      Category = "none"
	CategoryCold      Category = "cold"
	CategoryWarm      Category = "warm"
	CategoryQuote     Category = "quote"
	CategoryMarketing Category = "marketing"
	CategoryIgnored   Category = "ignored"
	CategoryError     Category = "error"
)

// Promoted reports whether the category moves the lead to the warm stage and stops the bot.
func (c Category) Promoted() bool {
	return c == CategoryWarm || c == CategoryQuote
}

// Lead is the CRM view of a lead the router needs.
type Lead struct {
	ID         int64    `json:"id"`
	PipelineID int64    `json:"pipeline_id"`
	StatusID   int64    `json:"status_id"`
	Tags       []string `json:"tags"`
}

// HasTag compares tag names case-insensitively.
func (l *Lead) HasTag(name string) bool {
	if l == nil {
		return false
	}
	for _, tag := range l.Tags {
		if strings.EqualFold(strings.TrimSpace(tag), name) {
			return true
		}
	}
	return false
}

// Record is a persisted lead classification for one turn.
type Record struct {
	ID             string               `json:"id"`
	LeadID         int64                `json:"lead_id"`
	ConversationID string               `json:"conversation_id"`
	SessionID      string               `json:"session_id"`
	Tag            conversation.LeadTag `json:"tag"`
	Stage          string               `json:"stage,omitempty"`
	Category       Category             `json:"category"`
	InputPrompt    string               `json:"input_prompt"`
	AIReplyText    string               `json:"ai_reply_text"`
	CreatedAt      time.Time            `json:"created_at"`
}

// NewRecord builds a persisted record from a turn's classification.
func NewRecord(leadID int64, conversationID string, rec conversation.LeadRecord, category Category) *Record {
	created := rec.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &Record{
		LeadID:         leadID,
		ConversationID: conversationID,
		SessionID:      rec.SessionID,
		Tag:            rec.Type,
		Stage:          rec.Stage,
		Category:       category,
		InputPrompt:    rec.InputPrompt,
		AIReplyText:    rec.AIReplyText,
		CreatedAt:      created,
	}
}

// ListRecordsFilter narrows record listings.
type ListRecordsFilter struct {
	Limit  int
	Offset int
}

func (f ListRecordsFilter) normalized() ListRecordsFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
