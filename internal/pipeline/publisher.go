package pipeline

import (
	"context"
	"fmt"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Publisher enqueues inbound CRM messages for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("pipeline: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueMessage publishes a message job. Status is tracked unless
// WithoutJobTracking is passed.
func (p *Publisher) EnqueueMessage(ctx context.Context, jobID string, req conversation.MessageRequest, opts ...PublishOption) error {
	payload := queuePayload{ID: jobID, Kind: jobTypeMessage, Message: req, TrackStatus: true}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("pipeline: failed to enqueue job: %w", err)
	}

	p.logger.Debug("message job enqueued", "job_id", payload.ID, "lead_id", req.LeadID, "conversation_id", req.ConversationID)
	return nil
}
