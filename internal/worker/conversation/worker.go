package conversationworker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandria/sales-ai-platform/cmd/mainconfig"
	appbootstrap "github.com/alejandria/sales-ai-platform/internal/app/bootstrap"
	appconfig "github.com/alejandria/sales-ai-platform/internal/config"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// Run starts the async conversation worker and blocks until ctx is canceled.
// reg may be nil when the process exposes no metrics.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("conversation worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	rt, err := appbootstrap.NewRuntime(ctx, cfg, awsConfig, logger, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	providers, err := appbootstrap.BuildProviders(ctx, cfg, awsConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to configure llm providers: %w", err)
	}
	defer providers.Close()

	responder, err := appbootstrap.BuildResponder(rt, providers)
	if err != nil {
		return fmt.Errorf("failed to configure responder: %w", err)
	}
	pipe, err := appbootstrap.BuildPipeline(rt, responder)
	if err != nil {
		return fmt.Errorf("failed to configure pipeline: %w", err)
	}
	jobs, err := appbootstrap.BuildJobs(rt)
	if err != nil {
		return fmt.Errorf("failed to configure queue: %w", err)
	}

	worker := appbootstrap.NewWorker(rt, pipe.Service, jobs)
	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "job_store", cfg.JobStoreBackend)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}
