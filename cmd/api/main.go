package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandria/sales-ai-platform/cmd/mainconfig"
	"github.com/alejandria/sales-ai-platform/internal/api/router"
	appbootstrap "github.com/alejandria/sales-ai-platform/internal/app/bootstrap"
	appconfig "github.com/alejandria/sales-ai-platform/internal/config"
	"github.com/alejandria/sales-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/internal/pipeline"
	"github.com/alejandria/sales-ai-platform/internal/webchat"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := mainconfig.NewLogger(cfg, "api")
	logger.Info("starting sales-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	reg, metricsHandler := setupMetrics()
	rt, err := appbootstrap.NewRuntime(ctx, cfg, awsCfg, logger, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	providers, err := appbootstrap.BuildProviders(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	responder, err := appbootstrap.BuildResponder(rt, providers)
	if err != nil {
		return err
	}
	pipe, err := appbootstrap.BuildPipeline(rt, responder)
	if err != nil {
		return err
	}
	jobs, err := appbootstrap.BuildJobs(rt)
	if err != nil {
		return err
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	var inline *pipeline.Worker
	if jobs.Memory {
		inline = appbootstrap.NewWorker(rt, pipe.Service, jobs)
		inline.Start(workerCtx)
		logger.Info("inline conversation workers started", "workers", cfg.WorkerCount)
	}

	var sessionStore webchat.SessionStore
	if rt.Redis != nil {
		sessionStore = webchat.NewRedisSessionStore(rt.Redis)
	}
	sessions := webchat.NewSessionResolver(sessionStore, 0)

	var auditLog handlers.AuditQuerier
	if pipe.Audit != nil {
		auditLog = pipe.Audit
	}

	limiter := newRateLimiter(cfg)
	if limiter != nil {
		go limiter.RunJanitor(workerCtx, time.Minute, 10*time.Minute)
	}

	routerCfg := &router.Config{
		Logger:             logger,
		KommoWebhook:       handlers.NewKommoWebhookHandler(cfg.KommoScopeID, pipeline.NewPublisher(jobs.Queue, logger), jobs.Store, rt.Metrics, logger),
		ChatHandler:        handlers.NewChatHandler(responder, sessions, pipe.Archive, logger),
		WebChat:            webchat.NewHandler(responder, sessions, logger),
		AdminHandler:       handlers.NewAdminHandler(responder, auditLog, logger),
		LeadsHandler:       leads.NewHandler(pipe.Records, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		RateLimiter:        limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if inline != nil {
		cancelWorkers()
		inline.Wait()
	}
	return nil
}

// setupMetrics creates the process registry and its scrape handler.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func newRateLimiter(cfg *appconfig.Config) *httpmiddleware.RateLimiter {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	return httpmiddleware.NewRateLimiter(float64(cfg.RateLimitPerMinute)/60, cfg.RateLimitBurst)
}
