package conversation

import (
	"errors"
	"strings"
	"time"
)

// Turn is one chat utterance stored in a session's history.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment is a document the client sent with a message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
	// StorageKey is set once the file has been archived.
	StorageKey string `json:"storageKey,omitempty"`
}

// MessageRequest is one inbound client message.
type MessageRequest struct {
	SessionID      string      `json:"sessionId"`
	ConversationID string      `json:"conversationId"`
	LeadID         int64       `json:"leadId"`
	Prompt         string      `json:"prompt"`
	Document       *Attachment `json:"document,omitempty"`
}

var (
	ErrEmptyPrompt           = errors.New("conversation: empty message")
	ErrMissingConversationID = errors.New("conversation: conversation id is required")
	ErrMissingLeadID         = errors.New("conversation: lead id is required")
	ErrMissingSessionID      = errors.New("conversation: session id is required")
)

// Validate rejects requests that must never reach a completion or CRM call.
func (r MessageRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" && r.Document == nil {
		return ErrEmptyPrompt
	}
	if strings.TrimSpace(r.ConversationID) == "" {
		return ErrMissingConversationID
	}
	if r.LeadID <= 0 {
		return ErrMissingLeadID
	}
	return nil
}

// LeadTag is the classification a single turn produced.
type LeadTag string

const (
	TagFarewell                    LeadTag = "farewell"
	TagEducational                 LeadTag = "educational"
	TagOneOffJob                   LeadTag = "one-off-job"
	TagPreQualifyBeforePrice       LeadTag = "pre-qualify-before-price"
	TagImmediateDocumentRequest    LeadTag = "immediate-document-request"
	TagQuoteDocumentRequest        LeadTag = "quote-document-request"
	TagDocumentReceivedUnqualified LeadTag = "document-received-unqualified"
	TagDocumentReceivedQualified   LeadTag = "document-received-qualified"
	TagCold                        LeadTag = "cold"
	TagWarm                        LeadTag = "warm"
	TagFatal                       LeadTag = "fatal"
)

// Funnel stages attached to lead records.
const (
	StageNew                  = "new"
	StageInterested           = "interested"
	StageInterestedInLearning = "interested-in-learning"
	StageAwaitingFileForQuote = "awaiting-file-for-quote"
	StagePreQualification     = "pre-qualification"
	StageQualification        = "qualification"
	StageAwaitingDocument     = "awaiting-document"
	StageAwaitingQuote        = "awaiting-quote"
	StageClosed               = "closed"
)

// LeadRecord is the per-turn classification, created fresh each turn.
type LeadRecord struct {
	Type        LeadTag   `json:"type"`
	Stage       string    `json:"stage,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"sessionId"`
	InputPrompt string    `json:"inputPrompt"`
	AIReplyText string    `json:"aiReplyText"`
}
