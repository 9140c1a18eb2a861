package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/alejandria/sales-ai-platform/internal/archive"
	"github.com/alejandria/sales-ai-platform/internal/audit"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/kommo"
	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/internal/notify"
	"github.com/alejandria/sales-ai-platform/internal/pipeline"
)

// Pipeline bundles the message service with the stores the HTTP layer reads.
type Pipeline struct {
	Service *pipeline.Service
	CRM     *kommo.Client
	Router  *leads.Router
	Records leads.Repository
	Audit   *audit.Service
	Archive *archive.Store
}

// BuildPipeline wires the Kommo client, lead router and the promotion side
// effects around responder.
func BuildPipeline(rt *Runtime, responder *conversation.Responder) (*Pipeline, error) {
	if rt == nil || responder == nil {
		return nil, fmt.Errorf("bootstrap: runtime and responder are required")
	}
	cfg, logger := rt.Config, rt.Logger
	if !cfg.KommoConfigured() {
		return nil, fmt.Errorf("bootstrap: KOMMO_BASE_URL and KOMMO_ACCESS_TOKEN are required")
	}

	crm, err := kommo.New(kommo.Config{
		BaseURL:     cfg.KommoBaseURL,
		AccessToken: cfg.KommoAccessToken,
		Timeout:     cfg.KommoTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: kommo client: %w", err)
	}

	router := leads.NewRouter(crm, leads.PipelineStages{
		PipelineID:   cfg.KommoPipelineID,
		ColdStatusID: cfg.KommoColdStatusID,
		WarmStatusID: cfg.KommoWarmStatusID,
	}, cfg.KommoStopTag, logger)

	p := &Pipeline{CRM: crm, Router: router}

	if rt.Pool != nil {
		p.Records = leads.NewPostgresRepository(rt.Pool)
	} else {
		p.Records = leads.NewInMemoryRepository()
	}

	opts := []pipeline.Option{
		pipeline.WithRecords(p.Records),
		pipeline.WithNotifier(notify.NewAdvisorNotifier(buildEmailSender(rt), cfg.NotifyRecipients, logger)),
	}
	if rt.DB != nil {
		p.Audit = audit.NewService(rt.DB)
		opts = append(opts, pipeline.WithAuditor(p.Audit))
	} else {
		logger.Warn("DATABASE_URL not set; CRM audit trail disabled")
	}
	if bucket := strings.TrimSpace(cfg.AttachmentsBucket); bucket != "" {
		p.Archive = archive.NewStore(s3.NewFromConfig(rt.AWS), bucket, logger)
		opts = append(opts, pipeline.WithTranscriptArchive(p.Archive, responder))
	} else {
		p.Archive = archive.NewStore(nil, "", logger)
	}
	if rt.Metrics != nil {
		opts = append(opts, pipeline.WithMetrics(rt.Metrics))
	}

	p.Service = pipeline.NewService(responder, router, crm, logger, opts...)
	return p, nil
}

func buildEmailSender(rt *Runtime) notify.EmailSender {
	cfg, logger := rt.Config, rt.Logger
	switch cfg.NotifyProvider {
	case "ses":
		if cfg.SESFromEmail == "" {
			logger.Warn("SES_FROM_EMAIL not set; advisor emails disabled")
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(rt.AWS), notify.SESConfig{FromEmail: cfg.SESFromEmail, ConfigurationSet: cfg.SESConfigurationSet}, logger)
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			logger.Warn("SENDGRID_API_KEY not set; advisor emails disabled")
			return nil
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	default:
		return notify.NewStubEmailSender(logger)
	}
}

// Jobs is the queue and job tracking pair shared by the webhook and worker.
type Jobs struct {
	Queue pipeline.Queue
	Store pipeline.JobTracker
	// Memory reports whether the queue lives in this process, in which case
	// the API runs the worker inline.
	Memory bool
}

// BuildJobs selects the queue transport and job store.
func BuildJobs(rt *Runtime) (*Jobs, error) {
	if rt == nil {
		return nil, fmt.Errorf("bootstrap: runtime is required")
	}
	cfg, logger := rt.Config, rt.Logger

	if cfg.UseMemoryQueue {
		logger.Info("using in-memory conversation queue")
		return &Jobs{Queue: pipeline.NewMemoryQueue(1024), Store: pipeline.NewMemoryJobStore(), Memory: true}, nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	jobs := &Jobs{Queue: pipeline.NewSQSQueue(sqs.NewFromConfig(rt.AWS), cfg.ConversationQueueURL)}

	switch cfg.JobStoreBackend {
	case "postgres":
		if rt.Pool == nil {
			return nil, fmt.Errorf("bootstrap: JOB_STORE_BACKEND=postgres requires DATABASE_URL")
		}
		jobs.Store = pipeline.NewPGJobStore(rt.Pool)
	case "memory":
		logger.Warn("job status kept in memory; the worker and api will not share it")
		jobs.Store = pipeline.NewMemoryJobStore()
	case "", "dynamo":
		if cfg.ConversationJobsTable == "" {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_JOBS_TABLE is required for the dynamo job store")
		}
		jobs.Store = pipeline.NewJobStore(dynamodb.NewFromConfig(rt.AWS), cfg.ConversationJobsTable, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown job store backend %q", cfg.JobStoreBackend)
	}
	return jobs, nil
}

// NewWorker builds the queue consumer for the pipeline service.
func NewWorker(rt *Runtime, svc *pipeline.Service, jobs *Jobs) *pipeline.Worker {
	opts := []pipeline.WorkerOption{
		pipeline.WithWorkerCount(rt.Config.WorkerCount),
		pipeline.WithJobTimeout(rt.Config.JobTimeout),
	}
	if !jobs.Memory {
		// SQS long polling.
		opts = append(opts, pipeline.WithReceiveWaitSeconds(20), pipeline.WithReceiveBatchSize(10))
	}
	return pipeline.NewWorker(svc, jobs.Queue, jobs.Store, rt.Logger, opts...)
}
