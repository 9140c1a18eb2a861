package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandria/sales-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/internal/webchat"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	KommoWebhook       *handlers.KommoWebhookHandler
	ChatHandler        *handlers.ChatHandler
	WebChat            *webchat.Handler
	AdminHandler       *handlers.AdminHandler
	LeadsHandler       *leads.Handler
	AdminAuthSecret    string
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.KommoWebhook != nil {
			public.Route("/kommo", func(r chi.Router) {
				r.Post("/incoming/{scopeID}", cfg.KommoWebhook.HandleIncoming)
				r.Get("/jobs/{jobID}", cfg.KommoWebhook.JobStatus)
			})
		}
	})

	// Browser-facing chat, rate limited per client IP
	r.Group(func(chat chi.Router) {
		if cfg.RateLimiter != nil {
			chat.Use(cfg.RateLimiter.Middleware)
		}
		if cfg.ChatHandler != nil {
			chat.With(middleware.Compress(5)).Post("/chat", cfg.ChatHandler.Chat)
		}
		if cfg.WebChat != nil {
			chat.Get("/ws/chat", cfg.WebChat.HandleWebSocket)
			chat.Get("/chat/history", cfg.WebChat.HandleHistory)
		}
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.LeadsHandler != nil {
				admin.Get("/leads/{leadID}/records", cfg.LeadsHandler.ListRecords)
			}
			if cfg.AdminHandler != nil {
				admin.Get("/sessions/{sessionID}/turns", cfg.AdminHandler.SessionTurns)
				admin.Get("/audit", cfg.AdminHandler.AuditEvents)
			}
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
