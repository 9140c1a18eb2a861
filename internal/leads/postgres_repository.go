package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores lead records in the relational database.
type PostgresRepository struct {
	db pgxQuerier
}

// NewPostgresRepository initializes a repo backed by a *pgxpool.Pool.
func NewPostgresRepository(db pgxQuerier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// Save inserts a new row.
func (r *PostgresRepository) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	if rec.LeadID <= 0 {
		return ErrInvalidLeadID
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lead_records (id, lead_id, conversation_id, session_id, tag, stage, category, input_prompt, ai_reply_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.LeadID,
		rec.ConversationID,
		rec.SessionID,
		string(rec.Tag),
		rec.Stage,
		string(rec.Category),
		rec.InputPrompt,
		rec.AIReplyText,
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	return nil
}

const selectRecordColumns = `id, lead_id, conversation_id, session_id, tag, stage, category, input_prompt, ai_reply_text, created_at`

// ListByLead returns records newest first.
func (r *PostgresRepository) ListByLead(ctx context.Context, leadID int64, filter ListRecordsFilter) ([]*Record, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + selectRecordColumns + `
		FROM lead_records
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, leadID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return records, nil
}

// Latest fetches the most recent record for a lead.
func (r *PostgresRepository) Latest(ctx context.Context, leadID int64) (*Record, error) {
	query := `
		SELECT ` + selectRecordColumns + `
		FROM lead_records
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec      Record
		tag      string
		category string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.LeadID,
		&rec.ConversationID,
		&rec.SessionID,
		&tag,
		&rec.Stage,
		&category,
		&rec.InputPrompt,
		&rec.AIReplyText,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	rec.Tag = conversation.LeadTag(tag)
	rec.Category = Category(category)
	return &rec, nil
}
