package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	LogFormat      string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// HTTP surface
	CORSAllowedOrigins []string
	AdminJWTSecret     string
	RateLimitPerMinute int
	RateLimitBurst     int

	// Completion and embedding providers
	LLMProvider             string // ollama, bedrock or gemini
	LLMFallbackProvider     string
	LLMTimeout              time.Duration
	LLMMaxTokens            int
	LLMTemperature          float64
	OllamaURL               string
	OllamaChatModel         string
	OllamaEmbeddingModel    string
	GeminiAPIKey            string
	GeminiModelID           string
	GeminiEmbeddingModel    string
	EmbeddingProvider       string
	BedrockModelID          string
	BedrockEmbeddingModelID string

	// Conversation history and retrieval
	HistoryBackend      string // memory, redis or postgres
	RetrievalScope      string // global or session
	RetrievalTopK       int
	ProfileCacheBackend string // memory, redis or none
	ProfileCacheTTL     time.Duration

	// Conversation tuning
	AudioReplyProbability float64
	AudioCaption          bool
	TypingDelay           time.Duration
	TypingDelayThreshold  int
	SystemPromptFile      string

	// Infrastructure
	RedisAddr             string
	RedisPassword         string
	RedisTLS              bool
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
	ConversationQueueURL  string
	ConversationJobsTable string
	JobStoreBackend       string // dynamo, postgres or memory
	JobTimeout            time.Duration
	AttachmentsBucket     string

	// Kommo CRM
	KommoBaseURL      string
	KommoScopeID      string
	KommoAccessToken  string
	KommoTimeout      time.Duration
	KommoPipelineID   int64
	KommoColdStatusID int64
	KommoWarmStatusID int64
	KommoStopTag      string

	// ElevenLabs speech synthesis
	ElevenLabsBaseURL string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Advisor notifications
	NotifyProvider      string // ses, sendgrid or stub
	NotifyRecipients    []string
	SESFromEmail        string
	SESConfigurationSet string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		LLMProvider:             lower(getEnv("LLM_PROVIDER", "ollama")),
		LLMFallbackProvider:     lower(getEnv("LLM_FALLBACK_PROVIDER", "")),
		LLMTimeout:              getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxTokens:            getEnvAsInt("LLM_MAX_TOKENS", 400),
		LLMTemperature:          getEnvAsFloat("LLM_TEMPERATURE", 0.4),
		OllamaURL:               getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaChatModel:         getEnv("OLLAMA_CHAT_MODEL", "gemma3:4b"),
		OllamaEmbeddingModel:    getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:           getEnv("GEMINI_MODEL_ID", "gemini-2.0-flash"),
		GeminiEmbeddingModel:    getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingProvider:       lower(getEnv("EMBEDDING_PROVIDER", "")),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),

		HistoryBackend:      lower(getEnv("HISTORY_BACKEND", "memory")),
		RetrievalScope:      lower(getEnv("RETRIEVAL_SCOPE", "global")),
		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 3),
		ProfileCacheBackend: lower(getEnv("PROFILE_CACHE_BACKEND", "memory")),
		ProfileCacheTTL:     getEnvAsDuration("PROFILE_CACHE_TTL", 6*time.Hour),

		AudioReplyProbability: clamp01(getEnvAsFloat("AUDIO_REPLY_PROBABILITY", 0.2)),
		AudioCaption:          getEnvAsBool("AUDIO_CAPTION", false),
		TypingDelay:           getEnvAsDuration("TYPING_DELAY", 5*time.Second),
		TypingDelayThreshold:  getEnvAsInt("TYPING_DELAY_THRESHOLD", 180),
		SystemPromptFile:      getEnv("SYSTEM_PROMPT_FILE", ""),

		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisTLS:              getEnvAsBool("REDIS_TLS", false),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		ConversationJobsTable: getEnv("CONVERSATION_JOBS_TABLE", "conversation_jobs"),
		JobStoreBackend:       lower(getEnv("JOB_STORE_BACKEND", "dynamo")),
		JobTimeout:            getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
		AttachmentsBucket:     getEnv("ATTACHMENTS_BUCKET", ""),

		KommoBaseURL:      strings.TrimRight(getEnv("KOMMO_BASE_URL", ""), "/"),
		KommoScopeID:      getEnv("KOMMO_SCOPE_ID", ""),
		KommoAccessToken:  getEnv("KOMMO_ACCESS_TOKEN", ""),
		KommoTimeout:      getEnvAsDuration("KOMMO_TIMEOUT", 15*time.Second),
		KommoPipelineID:   getEnvAsInt64("KOMMO_PIPELINE_ID", 0),
		KommoColdStatusID: getEnvAsInt64("KOMMO_COLD_STATUS_ID", 0),
		KommoWarmStatusID: getEnvAsInt64("KOMMO_WARM_STATUS_ID", 0),
		KommoStopTag:      getEnv("KOMMO_STOP_TAG", "STOP"),

		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModelID: getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		NotifyProvider:      lower(getEnv("NOTIFY_PROVIDER", "stub")),
		NotifyRecipients:    getEnvAsList("NOTIFY_RECIPIENTS", nil),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Alejandría Consultores"),
	}
}

// KommoConfigured reports whether CRM credentials are present.
func (c *Config) KommoConfigured() bool {
	return c.KommoBaseURL != "" && c.KommoAccessToken != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
