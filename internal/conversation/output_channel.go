package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrSynthesis marks a failed voice rendition of an otherwise complete reply.
var ErrSynthesis = errors.New("conversation: speech synthesis failed")

// Audio is synthesized speech.
type Audio struct {
	MimeType string
	Data     []byte
}

// Synthesizer converts reply text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// ChannelSelector decides per reply whether to answer with a voice note.
type ChannelSelector struct {
	probability float64
	synth       Synthesizer
	float       func() float64
	caption     bool
}

// ChannelOption customizes a ChannelSelector.
type ChannelOption func(*ChannelSelector)

// WithRandomSource overrides the uniform [0,1) source used for the draw.
func WithRandomSource(f func() float64) ChannelOption {
	return func(s *ChannelSelector) {
		if f != nil {
			s.float = f
		}
	}
}

// WithCaption keeps the reply text on audio content so it can be sent alongside.
func WithCaption(enabled bool) ChannelOption {
	return func(s *ChannelSelector) { s.caption = enabled }
}

// NewChannelSelector returns a selector that picks audio with the given
// probability. A nil synthesizer always selects text.
func NewChannelSelector(probability float64, synth Synthesizer, opts ...ChannelOption) *ChannelSelector {
	s := &ChannelSelector{probability: probability, synth: synth, float: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select wraps text as TextContent or synthesizes an AudioContent.
func (s *ChannelSelector) Select(ctx context.Context, text string) (Content, error) {
	if s == nil || s.synth == nil || s.probability <= 0 || s.float() >= s.probability {
		return TextContent{Text: text}, nil
	}
	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	mime := audio.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}
	content := AudioContent{MimeType: mime, Base64: base64.StdEncoding.EncodeToString(audio.Data)}
	if s.caption {
		content.Caption = text
	}
	return content, nil
}
