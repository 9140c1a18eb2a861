package archive

import (
	"path/filepath"
	"strings"
	"time"
)

// TranscriptRecord is the conversation handed to an advisor when a lead is promoted.
type TranscriptRecord struct {
	Version        string    `json:"version"`
	SessionID      string    `json:"session_id"`
	LeadID         int64     `json:"lead_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Category       string    `json:"category"`
	LeadTag        string    `json:"lead_tag"`
	ArchivedAt     time.Time `json:"archived_at"`
	TurnCount      int       `json:"turn_count"`
	Turns          []Turn    `json:"turns"`
}

// Turn is a single conversation turn.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID  string `json:"session_id"`
	LeadID     int64  `json:"lead_id,omitempty"`
	S3Key      string `json:"s3_key"`
	Category   string `json:"category"`
	ArchivedAt string `json:"archived_at"`
	TurnCount  int    `json:"turn_count"`
}

// Attachment is a file uploaded by a client.
type Attachment struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

var documentExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// IsDocument reports whether the upload is a PDF or Word file.
func IsDocument(name, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, m := range documentExtensions {
		if mimeType == m {
			return true
		}
	}
	_, ok := documentExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsAudio reports whether the upload is an audio clip.
func IsAudio(name, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".ogg", ".oga", ".wav", ".m4a", ".webm", ".opus":
		return true
	}
	return false
}

// DocumentMimeType returns mimeType, or the type implied by the file extension.
func DocumentMimeType(name, mimeType string) string {
	if mt := strings.TrimSpace(mimeType); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if mt, ok := documentExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}
