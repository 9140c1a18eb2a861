package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGJobStore persists job records to PostgreSQL for deployments without DynamoDB.
type PGJobStore struct {
	db pgxQuerier
}

var _ JobRecorder = (*PGJobStore)(nil)
var _ JobUpdater = (*PGJobStore)(nil)

// NewPGJobStore builds a Postgres-backed job store.
func NewPGJobStore(db pgxQuerier) *PGJobStore {
	if db == nil {
		panic("pipeline: pgx pool cannot be nil")
	}
	return &PGJobStore{db: db}
}

// PutPending inserts a pending job record.
func (s *PGJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("pipeline: job cannot be nil")
	}
	now := time.Now().UTC()
	stampPending(job, now)

	reqJSON, err := marshalJSON(job.Request)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO conversation_jobs (
			job_id, status, lead_id, conversation_id, request, result,
			error_message, created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,$5,NULL,'',$6,$6,$7)
	`, job.JobID, string(job.Status), job.LeadID, job.ConversationID, reqJSON, now, time.Unix(job.ExpiresAt, 0).UTC()); err != nil {
		return fmt.Errorf("pipeline: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted stores the final result.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID string, result *Result) error {
	if jobID == "" {
		return errJobIDRequired
	}
	resultJSON, err := marshalJSON(result)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE conversation_jobs
		SET status = $2, result = $3, error_message = '', updated_at = $4
		WHERE job_id = $1
	`, jobID, string(JobStatusCompleted), resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pipeline: failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed marks the job as failed with an error message.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errJobIDRequired
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE conversation_jobs
		SET status = $2, result = NULL, error_message = $3, updated_at = $4
		WHERE job_id = $1
	`, jobID, string(JobStatusFailed), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pipeline: failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *PGJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errJobIDRequired
	}

	var (
		status     string
		leadID     int64
		convID     pgtype.Text
		reqJSON    []byte
		resultJSON []byte
		errMsg     string
		createdAt  time.Time
		updatedAt  time.Time
		expiresAt  pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `
		SELECT status, lead_id, conversation_id, request, result,
		       error_message, created_at, updated_at, expires_at
		FROM conversation_jobs
		WHERE job_id = $1
	`, jobID).Scan(&status, &leadID, &convID, &reqJSON, &resultJSON, &errMsg, &createdAt, &updatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("pipeline: failed to fetch job: %w", err)
	}

	job := &JobRecord{
		JobID:        jobID,
		Status:       JobStatus(status),
		LeadID:       leadID,
		ErrorMessage: errMsg,
		CreatedAt:    createdAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    updatedAt.UTC().Format(time.RFC3339Nano),
	}
	if convID.Valid {
		job.ConversationID = convID.String
	}
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}
	if len(reqJSON) > 0 {
		var req conversation.MessageRequest
		if err := json.Unmarshal(reqJSON, &req); err != nil {
			return nil, fmt.Errorf("pipeline: failed to decode request: %w", err)
		}
		job.Request = &req
	}
	if len(resultJSON) > 0 {
		var res Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return nil, fmt.Errorf("pipeline: failed to decode result: %w", err)
		}
		job.Result = &res
	}
	return job, nil
}

func marshalJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *conversation.MessageRequest:
		if val == nil {
			return nil, nil
		}
	case *Result:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to encode json: %w", err)
	}
	return data, nil
}
