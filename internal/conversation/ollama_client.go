package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type langchainModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type langchainEmbedder interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// OllamaLLMClient completes chats against a local Ollama server through langchaingo.
type OllamaLLMClient struct {
	model langchainModel
}

// NewOllamaLLMClient connects to serverURL using the given chat model.
func NewOllamaLLMClient(serverURL, model string) (*OllamaLLMClient, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("conversation: ollama chat client: %w", err)
	}
	return newOllamaLLMClient(llm), nil
}

func newOllamaLLMClient(model langchainModel) *OllamaLLMClient {
	if model == nil {
		panic("conversation: ollama model cannot be nil")
	}
	return &OllamaLLMClient{model: model}
}

func (c *OllamaLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	content := make([]llms.MessageContent, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, block))
		}
	}
	for _, msg := range req.Messages {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, text))
		case ChatRoleUser:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, text))
		case ChatRoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, text))
		default:
			return LLMResponse{}, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}

	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxTokens)))
	}
	if req.Temperature >= 0 {
		opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
	}

	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return LLMResponse{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	out := LLMResponse{Text: strings.TrimSpace(choice.Content), StopReason: choice.StopReason}
	if info := choice.GenerationInfo; info != nil {
		out.Usage.InputTokens = intFromInfo(info, "PromptTokens")
		out.Usage.OutputTokens = intFromInfo(info, "CompletionTokens")
		out.Usage.TotalTokens = out.Usage.InputTokens + out.Usage.OutputTokens
	}
	return out, nil
}

func intFromInfo(info map[string]any, key string) int32 {
	switch v := info[key].(type) {
	case int:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case float64:
		return int32(v)
	}
	return 0
}

// OllamaEmbedder embeds text with an Ollama embedding model (nomic-embed-text by default).
type OllamaEmbedder struct {
	embedder langchainEmbedder
}

func NewOllamaEmbedder(serverURL, model string) (*OllamaEmbedder, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("conversation: ollama embedding client: %w", err)
	}
	return newOllamaEmbedder(llm), nil
}

func newOllamaEmbedder(embedder langchainEmbedder) *OllamaEmbedder {
	if embedder == nil {
		panic("conversation: ollama embedder cannot be nil")
	}
	return &OllamaEmbedder{embedder: embedder}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("conversation: ollama embed: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("conversation: ollama embedding was empty")
	}
	return vectors[0], nil
}
