package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/alejandria/sales-ai-platform/internal/config"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/tts"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Providers holds the completion and embedding clients selected by config.
type Providers struct {
	LLM      conversation.LLMClient
	Embedder conversation.Embedder
	closers  []func() error
}

// Close releases provider connections.
func (p *Providers) Close() {
	for _, c := range p.closers {
		_ = c()
	}
}

// BuildProviders wires the primary LLM provider, an optional fallback provider
// and the embedder.
func BuildProviders(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*Providers, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Providers{}

	primary, primaryEmbedder, err := p.provider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.LLM = primary
	p.Embedder = primaryEmbedder

	if fb := cfg.LLMFallbackProvider; fb != "" && fb != cfg.LLMProvider {
		fallback, _, err := p.provider(ctx, fb, cfg, awsCfg)
		if err != nil {
			logger.Warn("fallback llm provider unavailable", "provider", fb, "error", err)
		} else {
			p.LLM = conversation.NewFallbackLLMClient(primary, fallback, logger)
			logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", fb)
		}
	}

	if ep := cfg.EmbeddingProvider; ep != "" && ep != cfg.LLMProvider {
		_, embedder, err := p.provider(ctx, ep, cfg, awsCfg)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Embedder = embedder
	}

	logger.Info("llm providers ready", "provider", cfg.LLMProvider, "embedding_provider", firstNonEmpty(cfg.EmbeddingProvider, cfg.LLMProvider))
	return p, nil
}

func (p *Providers) provider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (conversation.LLMClient, conversation.Embedder, error) {
	switch name {
	case "ollama":
		llm, err := conversation.NewOllamaLLMClient(cfg.OllamaURL, cfg.OllamaChatModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: ollama: %w", err)
		}
		embedder, err := conversation.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaEmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: ollama embedder: %w", err)
		}
		return llm, embedder, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		return conversation.NewBedrockLLMClient(client, cfg.BedrockModelID),
			conversation.NewBedrockEmbeddingClient(client, cfg.BedrockEmbeddingModelID), nil
	case "gemini":
		client, err := conversation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, cfg.GeminiEmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		p.closers = append(p.closers, client.Close)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}

// BuildResponder wires the conversation engine: history, profile cache, prompts
// and the audio channel.
func BuildResponder(rt *Runtime, providers *Providers) (*conversation.Responder, error) {
	if rt == nil || providers == nil {
		return nil, fmt.Errorf("bootstrap: runtime and providers are required")
	}
	cfg, logger := rt.Config, rt.Logger

	history, err := buildHistoryStore(rt)
	if err != nil {
		return nil, err
	}

	prompts := conversation.DefaultPrompts()
	if path := strings.TrimSpace(cfg.SystemPromptFile); path != "" {
		loaded, err := conversation.LoadPrompts(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load prompts: %w", err)
		}
		prompts = loaded
	}

	opts := []conversation.ResponderOption{
		conversation.WithPrompts(prompts),
		// Each provider uses its own configured model.
		conversation.WithGeneration("", cfg.LLMMaxTokens, cfg.LLMTemperature),
		conversation.WithRetrieval(conversation.RetrievalScope(cfg.RetrievalScope), cfg.RetrievalTopK),
		conversation.WithTypingDelay(cfg.TypingDelay, cfg.TypingDelayThreshold),
		conversation.WithChannelSelector(buildChannelSelector(cfg, logger)),
		conversation.WithFactExtractor(conversation.NewFactExtractor(conversation.DefaultFactRules()...)),
		conversation.WithIntentClassifier(conversation.NewIntentClassifier(conversation.DefaultIntentRules()...)),
	}
	if cache := buildProfileCache(rt); cache != nil {
		opts = append(opts, conversation.WithProfileCache(cache))
	}
	if rt.Metrics != nil {
		opts = append(opts, conversation.WithCompletionObserver(rt.Metrics))
	}

	return conversation.NewResponder(providers.LLM, providers.Embedder, history, logger, opts...), nil
}

func buildHistoryStore(rt *Runtime) (conversation.HistoryStore, error) {
	switch rt.Config.HistoryBackend {
	case "postgres":
		if rt.Pool == nil {
			return nil, fmt.Errorf("bootstrap: HISTORY_BACKEND=postgres requires DATABASE_URL")
		}
		return conversation.NewPostgresHistoryStore(rt.Pool), nil
	case "redis":
		if rt.Redis == nil {
			return nil, fmt.Errorf("bootstrap: HISTORY_BACKEND=redis requires a reachable REDIS_ADDR")
		}
		return conversation.NewRedisHistoryStore(rt.Redis, 0), nil
	case "", "memory":
		rt.Logger.Warn("conversation history kept in memory; it is lost on restart")
		return conversation.NewMemoryHistoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown history backend %q", rt.Config.HistoryBackend)
	}
}

func buildProfileCache(rt *Runtime) conversation.ProfileCache {
	ttl := rt.Config.ProfileCacheTTL
	switch rt.Config.ProfileCacheBackend {
	case "redis":
		if rt.Redis != nil {
			return conversation.NewRedisProfileCache(rt.Redis, ttl)
		}
		rt.Logger.Warn("redis unavailable; profile cache falls back to memory")
		return conversation.NewMemoryProfileCache(ttl)
	case "memory", "":
		return conversation.NewMemoryProfileCache(ttl)
	default:
		return nil
	}
}

func buildChannelSelector(cfg *appconfig.Config, logger *logging.Logger) *conversation.ChannelSelector {
	if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" || cfg.AudioReplyProbability <= 0 {
		return conversation.NewChannelSelector(0, nil)
	}
	synth, err := tts.NewElevenLabsClient(tts.Config{
		BaseURL: cfg.ElevenLabsBaseURL,
		APIKey:  cfg.ElevenLabsAPIKey,
		VoiceID: cfg.ElevenLabsVoiceID,
		ModelID: cfg.ElevenLabsModelID,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		logger.Warn("speech synthesis disabled", "error", err)
		return conversation.NewChannelSelector(0, nil)
	}
	logger.Info("audio replies enabled", "probability", cfg.AudioReplyProbability, "caption", cfg.AudioCaption)
	return conversation.NewChannelSelector(cfg.AudioReplyProbability, synth, conversation.WithCaption(cfg.AudioCaption))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
