package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "LLM_PROVIDER", "AUDIO_REPLY_PROBABILITY", "KOMMO_STOP_TAG", "RETRIEVAL_SCOPE", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "ollama" {
		t.Fatalf("expected ollama provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.AudioReplyProbability != 0.2 {
		t.Fatalf("expected audio probability 0.2, got %v", cfg.AudioReplyProbability)
	}
	if cfg.TypingDelayThreshold != 180 {
		t.Fatalf("expected typing threshold 180, got %d", cfg.TypingDelayThreshold)
	}
	if cfg.RetrievalScope != "global" || cfg.RetrievalTopK != 3 {
		t.Fatalf("unexpected retrieval defaults: %s/%d", cfg.RetrievalScope, cfg.RetrievalTopK)
	}
	if cfg.KommoStopTag != "STOP" {
		t.Fatalf("expected STOP tag default, got %s", cfg.KommoStopTag)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("expected single default origin, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.KommoConfigured() {
		t.Fatalf("kommo should not be configured without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("AUDIO_REPLY_PROBABILITY", "0.45")
	t.Setenv("TYPING_DELAY", "2s")
	t.Setenv("KOMMO_BASE_URL", "https://alejandria.kommo.com/api/v4/")
	t.Setenv("KOMMO_ACCESS_TOKEN", "token")
	t.Setenv("KOMMO_PIPELINE_ID", "9876543")
	t.Setenv("KOMMO_WARM_STATUS_ID", "111")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("NOTIFY_RECIPIENTS", "ventas@alejandria.pe")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected port/env: %s %s", cfg.Port, cfg.Env)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.AudioReplyProbability != 0.45 {
		t.Fatalf("expected probability override, got %v", cfg.AudioReplyProbability)
	}
	if cfg.TypingDelay != 2*time.Second {
		t.Fatalf("expected typing delay override, got %s", cfg.TypingDelay)
	}
	if cfg.KommoBaseURL != "https://alejandria.kommo.com/api/v4" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.KommoBaseURL)
	}
	if cfg.KommoPipelineID != 9876543 || cfg.KommoWarmStatusID != 111 {
		t.Fatalf("unexpected pipeline ids: %d %d", cfg.KommoPipelineID, cfg.KommoWarmStatusID)
	}
	if !cfg.KommoConfigured() {
		t.Fatalf("expected kommo configured")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.NotifyRecipients) != 1 {
		t.Fatalf("expected one recipient, got %v", cfg.NotifyRecipients)
	}
}

func TestAudioProbabilityClamped(t *testing.T) {
	t.Setenv("AUDIO_REPLY_PROBABILITY", "1.7")
	if got := Load().AudioReplyProbability; got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	t.Setenv("AUDIO_REPLY_PROBABILITY", "-0.3")
	if got := Load().AudioReplyProbability; got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
}
