package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// MessageHandler processes one inbound message.
type MessageHandler interface {
	HandleIncomingMessage(ctx context.Context, req conversation.MessageRequest) (*Result, error)
}

// Worker consumes message jobs from the queue. Each job runs on one of a
// fixed number of consumer goroutines.
type Worker struct {
	handler MessageHandler
	queue   Queue
	jobs    JobUpdater
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultJobTimeout    = 2 * time.Minute
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds the time spent on a single message.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// NewWorker constructs a queue consumer around the provided handler.
func NewWorker(handler MessageHandler, queue Queue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("pipeline: handler cannot be nil")
	}
	if queue == nil {
		panic("pipeline: queue cannot be nil")
	}
	if jobs == nil {
		panic("pipeline: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{handler: handler, queue: queue, jobs: jobs, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumers have returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("message worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("message worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive message jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode message job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	logger := w.logger.With("job_id", payload.ID, "kind", string(payload.Kind)).
		WithLead(payload.Message.LeadID, payload.Message.ConversationID)

	var (
		res *Result
		err error
	)
	switch payload.Kind {
	case jobTypeMessage:
		jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
		res, err = w.handler.HandleIncomingMessage(jobCtx, payload.Message)
		cancel()
	default:
		err = fmt.Errorf("pipeline: unknown job type %q", payload.Kind)
	}

	// Shutdown mid-job: leave the message for redelivery.
	if err != nil && ctx.Err() != nil {
		logger.Warn("message job interrupted", "error", err)
		return
	}

	switch {
	case err != nil:
		logger.Error("message job failed", "error", err)
		w.markFailed(ctx, logger, payload, err.Error())
	case res != nil && !res.Success:
		logger.Warn("message job finished without reply", "type", res.Type, "reason", res.Error)
		w.markFailed(ctx, logger, payload, failureMessage(res))
	default:
		logger.Debug("message job processed", "ignored", res != nil && res.Ignored)
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, res); storeErr != nil {
				logger.Error("failed to update job status", "error", storeErr)
			}
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) markFailed(ctx context.Context, logger *logging.Logger, payload queuePayload, reason string) {
	if !payload.TrackStatus {
		return
	}
	if storeErr := w.jobs.MarkFailed(ctx, payload.ID, reason); storeErr != nil {
		logger.Error("failed to update job status", "error", storeErr)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete message job", "error", err)
	}
}

func failureMessage(res *Result) string {
	if res.Type == "" {
		return res.Error
	}
	if res.Error == "" {
		return res.Type
	}
	return res.Type + ": " + res.Error
}
