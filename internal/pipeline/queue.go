package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
)

// Queue is the message transport between the webhook and the worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const jobTypeMessage jobType = "kommo.message.v1"

type queuePayload struct {
	ID          string                      `json:"id"`
	Kind        jobType                     `json:"kind"`
	Message     conversation.MessageRequest `json:"message"`
	TrackStatus bool                        `json:"track_status"`
	ReceivedAt  time.Time                   `json:"received_at"`
}

// PublishOption customizes a queued job.
type PublishOption func(*queuePayload)

// WithoutJobTracking disables job status persistence for fire-and-forget work.
func WithoutJobTracking() PublishOption {
	return func(p *queuePayload) {
		p.TrackStatus = false
	}
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("pipeline: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
