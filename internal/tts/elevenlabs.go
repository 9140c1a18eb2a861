package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultModelID = "eleven_multilingual_v2"
	outputMimeType = "audio/mpeg"
)

// Config controls the ElevenLabs client.
type Config struct {
	BaseURL    string
	APIKey     string
	VoiceID    string
	ModelID    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ElevenLabsClient renders reply text as mp3 speech.
type ElevenLabsClient struct {
	baseURL    string
	apiKey     string
	voiceID    string
	modelID    string
	httpClient *http.Client
}

// APIError is a non-2xx ElevenLabs response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tts: elevenlabs api error (%d): %s", e.StatusCode, e.Body)
}

func NewElevenLabsClient(cfg Config) (*ElevenLabsClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tts: elevenlabs api key is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, errors.New("tts: elevenlabs voice id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		modelID = defaultModelID
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ElevenLabsClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		modelID:    modelID,
		httpClient: httpClient,
	}, nil
}

// Synthesize implements conversation.Synthesizer.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (conversation.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conversation.Audio{}, errors.New("tts: empty text")
	}
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": c.modelID,
	})
	if err != nil {
		return conversation.Audio{}, fmt.Errorf("tts: marshal request: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return conversation.Audio{}, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", outputMimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return conversation.Audio{}, fmt.Errorf("tts: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return conversation.Audio{}, fmt.Errorf("tts: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return conversation.Audio{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if len(data) == 0 {
		return conversation.Audio{}, errors.New("tts: empty audio")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "audio/") {
		mime = outputMimeType
	}
	return conversation.Audio{MimeType: mime, Data: data}, nil
}
