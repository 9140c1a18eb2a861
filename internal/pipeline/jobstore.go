package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of a message job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	// ErrJobNotFound indicates the requested job ID does not exist.
	ErrJobNotFound   = errors.New("pipeline: job not found")
	errJobIDRequired = errors.New("pipeline: jobID required")
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord captures the persisted state of one inbound message.
type JobRecord struct {
	JobID          string                       `dynamodbav:"jobId" json:"jobId"`
	Status         JobStatus                    `dynamodbav:"status" json:"status"`
	LeadID         int64                        `dynamodbav:"leadId,omitempty" json:"leadId,omitempty"`
	ConversationID string                       `dynamodbav:"conversationId,omitempty" json:"conversationId,omitempty"`
	Request        *conversation.MessageRequest `dynamodbav:"request,omitempty" json:"request,omitempty"`
	Result         *Result                      `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage   string                       `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt      string                       `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      string                       `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt      int64                        `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder persists new jobs and serves status lookups.
type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// JobUpdater records the outcome of a processed job.
type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, result *Result) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobTracker is a full job store: the webhook records, the worker updates.
type JobTracker interface {
	JobRecorder
	JobUpdater
}

// JobStore persists job records to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("pipeline: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("pipeline: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, logger: logger}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("pipeline: job cannot be nil")
	}
	stampPending(job, time.Now().UTC())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("pipeline: failed to marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("pipeline: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted updates a job with the final result.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, result *Result) error {
	if jobID == "" {
		return errJobIDRequired
	}
	if result == nil {
		result = &Result{}
	}
	resultAttr, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("pipeline: failed to marshal result: %w", err)
	}

	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":result":  resultAttr,
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, #result = :result, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errJobIDRequired
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":result":  &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, #result = :result, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errJobIDRequired
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("pipeline: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String(expression),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#result":  "result",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("pipeline: failed to update job %s: %w", jobID, err)
	}
	return nil
}

func stampPending(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
	if job.Request != nil {
		job.LeadID = job.Request.LeadID
		job.ConversationID = job.Request.ConversationID
	}
}

// MemoryJobStore keeps job records in process memory for single-process runs.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

var _ JobRecorder = (*MemoryJobStore)(nil)
var _ JobUpdater = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("pipeline: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("pipeline: job %s already exists", job.JobID)
	}
	stampPending(job, time.Now().UTC())
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, result *Result) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusCompleted
		job.Result = result
		job.ErrorMessage = ""
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.update(jobID, func(job *JobRecord) {
		job.Status = JobStatusFailed
		job.Result = nil
		job.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errJobIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) update(jobID string, fn func(*JobRecord)) error {
	if jobID == "" {
		return errJobIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}
