package conversation

import "encoding/json"

// Content is the payload delivered to the client: TextContent or AudioContent.
type Content interface {
	isContent()
}

// TextContent is a plain text reply.
type TextContent struct {
	Text string
}

// AudioContent is a synthesized voice reply.
type AudioContent struct {
	MimeType string
	Base64   string
	// Caption carries the reply text when it is delivered alongside the audio.
	Caption string
}

func (TextContent) isContent()  {}
func (AudioContent) isContent() {}

// ResponseEnvelope is the outcome of one generated turn.
type ResponseEnvelope struct {
	Content Content
	Lead    LeadRecord
}

// ReplyText returns the text form of the reply, if any.
func (e ResponseEnvelope) ReplyText() string {
	switch c := e.Content.(type) {
	case TextContent:
		return c.Text
	case AudioContent:
		return c.Caption
	}
	return ""
}

type audioJSON struct {
	IsAudio  bool   `json:"isAudio"`
	MimeType string `json:"mimeType"`
	Base64   string `json:"base64"`
	Message  string `json:"message"`
	Caption  string `json:"caption,omitempty"`
}

// MarshalJSON renders text replies as a bare string and audio replies as an object.
func (e ResponseEnvelope) MarshalJSON() ([]byte, error) {
	var content any
	switch c := e.Content.(type) {
	case TextContent:
		content = c.Text
	case AudioContent:
		content = audioJSON{IsAudio: true, MimeType: c.MimeType, Base64: c.Base64, Message: "generated", Caption: c.Caption}
	}
	return json.Marshal(struct {
		Content any        `json:"content"`
		Lead    LeadRecord `json:"lead"`
	}{Content: content, Lead: e.Lead})
}
