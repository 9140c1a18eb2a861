package kommo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const defaultUserAgent = "alejandria-sales-ai/0.1"

// ErrUnauthorized is returned when Kommo rejects the access token.
var ErrUnauthorized = errors.New("kommo: unauthorized")

// Config controls how the Kommo client behaves.
type Config struct {
	// BaseURL is the account API root, e.g. https://example.kommo.com/api/v4.
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	UserAgent   string
}

// Client wraps the Kommo REST endpoints used by the sales bot.
// Requests are not retried; callers decide what a failure means.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("kommo: access token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("kommo: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.AccessToken,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// GetLead fetches a lead with its tags.
func (c *Client) GetLead(ctx context.Context, leadID int64) (*leads.Lead, error) {
	if leadID <= 0 {
		return nil, leads.ErrInvalidLeadID
	}
	data, err := c.invoke(ctx, http.MethodGet, "/leads/"+strconv.FormatInt(leadID, 10), nil, nil, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, leads.ErrLeadNotFound
		}
		return nil, fmt.Errorf("kommo: get lead: %w", err)
	}
	var payload leadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("kommo: decode lead: %w", err)
	}
	return payload.toLead(), nil
}

// MoveLead sets the lead's pipeline and status.
func (c *Client) MoveLead(ctx context.Context, leadID, pipelineID, statusID int64) error {
	body, err := json.Marshal([]leadUpdate{{ID: leadID, PipelineID: pipelineID, StatusID: statusID}})
	if err != nil {
		return fmt.Errorf("kommo: marshal move: %w", err)
	}
	if _, err := c.invoke(ctx, http.MethodPatch, "/leads", nil, body, "application/json"); err != nil {
		return fmt.Errorf("kommo: move lead: %w", err)
	}
	c.logger.Info("kommo lead moved", "lead_id", leadID, "pipeline_id", pipelineID, "status_id", statusID)
	return nil
}

// AddStopTag adds a tag to the lead without touching its other tags.
func (c *Client) AddStopTag(ctx context.Context, leadID int64, tag string) error {
	if strings.TrimSpace(tag) == "" {
		return errors.New("kommo: tag name required")
	}
	body, err := json.Marshal([]leadUpdate{{ID: leadID, TagsToAdd: []tagRef{{Name: tag}}}})
	if err != nil {
		return fmt.Errorf("kommo: marshal tag: %w", err)
	}
	if _, err := c.invoke(ctx, http.MethodPatch, "/leads", nil, body, "application/json"); err != nil {
		return fmt.Errorf("kommo: add tag: %w", err)
	}
	c.logger.Info("kommo tag added", "lead_id", leadID, "tag", tag)
	return nil
}

// HasStopTag reports whether the lead carries tag, compared case-insensitively.
func (c *Client) HasStopTag(ctx context.Context, leadID int64, tag string) (bool, error) {
	lead, err := c.GetLead(ctx, leadID)
	if err != nil {
		return false, err
	}
	return lead.HasTag(tag), nil
}

// SendTextMessage posts a rich_text chat message into a conversation.
func (c *Client) SendTextMessage(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("kommo: conversation id required")
	}
	return c.sendChatMessage(ctx, conversationID, chatMessage{Type: "rich_text", Text: "<p>" + html.EscapeString(text) + "</p>"})
}

// SendAudioMessage uploads the audio file and posts it as an audio chat message.
func (c *Client) SendAudioMessage(ctx context.Context, conversationID, mimeType, audioBase64 string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("kommo: conversation id required")
	}
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return fmt.Errorf("kommo: decode audio: %w", err)
	}
	fileUUID, err := c.UploadFile(ctx, "audio.mp3", mimeType, audio)
	if err != nil {
		return err
	}
	return c.sendChatMessage(ctx, conversationID, chatMessage{Type: "audio", FileUUID: fileUUID})
}

// UploadFile stores a file in Kommo and returns its uuid.
func (c *Client) UploadFile(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("kommo: empty file")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("kommo: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("kommo: copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("kommo: close multipart writer: %w", err)
	}

	resp, err := c.invoke(ctx, http.MethodPost, "/files", nil, buf.Bytes(), writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("kommo: upload file: %w", err)
	}
	var uploaded struct {
		FileUUID string `json:"file_uuid"`
	}
	if err := json.Unmarshal(resp, &uploaded); err != nil {
		return "", fmt.Errorf("kommo: decode upload: %w", err)
	}
	if uploaded.FileUUID == "" {
		return "", errors.New("kommo: upload returned no file uuid")
	}
	return uploaded.FileUUID, nil
}

func (c *Client) sendChatMessage(ctx context.Context, conversationID string, msg chatMessage) error {
	body, err := json.Marshal(chatMessageRequest{Message: msg, ConversationID: conversationID})
	if err != nil {
		return fmt.Errorf("kommo: marshal message: %w", err)
	}
	if _, err := c.invoke(ctx, http.MethodPost, "/chats/messages", nil, body, "application/json"); err != nil {
		return fmt.Errorf("kommo: send %s message: %w", msg.Type, err)
	}
	c.logger.Debug("kommo message sent", "conversation_id", conversationID, "type", msg.Type)
	return nil
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("kommo: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("kommo: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kommo: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}
