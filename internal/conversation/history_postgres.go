package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresHistoryStore stores turns in chat_messages and searches them with pgvector.
type PostgresHistoryStore struct {
	db     pgxQuerier
	tracer trace.Tracer
}

// NewPostgresHistoryStore accepts a *pgxpool.Pool or any compatible querier.
func NewPostgresHistoryStore(db pgxQuerier) *PostgresHistoryStore {
	if db == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PostgresHistoryStore{db: db, tracer: otel.Tracer("alejandria.internal.conversation.history")}
}

const insertChatMessageSQL = `
	INSERT INTO chat_messages (id, session_id, role, content, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5::vector, $6)`

func (s *PostgresHistoryStore) Append(ctx context.Context, sessionID string, turns ...StoredTurn) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	for _, turn := range turns {
		var embedding *string
		if len(turn.Embedding) > 0 {
			literal := vectorLiteral(turn.Embedding)
			embedding = &literal
		}
		if _, err := s.db.Exec(ctx, insertChatMessageSQL,
			uuid.NewString(), sessionID, turn.Role, turn.Text, embedding, turn.Timestamp.UTC(),
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to insert chat message: %w", err)
		}
	}
	return nil
}

func (s *PostgresHistoryStore) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Text, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan chat message: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to iterate history: %w", err)
	}
	return turns, nil
}

func (s *PostgresHistoryStore) NearestByEmbedding(ctx context.Context, query []float32, k int, sessionID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.nearest_turns")
	defer span.End()

	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT content
		FROM chat_messages
		WHERE embedding IS NOT NULL AND ($3 = '' OR session_id = $3)
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, vectorLiteral(query), k, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to match chat messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan match: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// vectorLiteral formats v in pgvector's text input form.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
